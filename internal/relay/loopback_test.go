package relay

import (
	"context"
	"testing"
	"time"

	"pairing/internal/cryptoprim"
)

func TestLoopbackPublishSubscribePlaintext(t *testing.T) {
	l := NewLoopback()
	a := l.NewClient("a")
	b := l.NewClient("b")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch, err := b.Subscribe(ctx, "topic-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := a.Publish(ctx, "topic-1", []byte(`{"hello":"world"}`), PublishOptions{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case raw := <-ch:
		got, err := OpenDelivery(raw, DecryptOptions{})
		if err != nil {
			t.Fatalf("OpenDelivery: %v", err)
		}
		if string(got) != `{"hello":"world"}` {
			t.Fatalf("got %s", got)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for delivery")
	}
}

func TestLoopbackSealedEnvelopeRoundTrip(t *testing.T) {
	responder, err := cryptoprim.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	proposer, err := cryptoprim.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	l := NewLoopback()
	a := l.NewClient("responder")
	b := l.NewClient("proposer")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch, err := b.Subscribe(ctx, "proposal-topic")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	opts := PublishOptions{Seal: &SealOptions{Self: responder, PeerPublicKey: proposer.PublicKey}}
	if err := a.Publish(ctx, "proposal-topic", []byte(`{"outcome":"ok"}`), opts); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	raw := <-ch
	got, err := OpenDelivery(raw, DecryptOptions{Self: &proposer})
	if err != nil {
		t.Fatalf("OpenDelivery: %v", err)
	}
	if string(got) != `{"outcome":"ok"}` {
		t.Fatalf("got %s", got)
	}
}

func TestLoopbackUnsubscribeStopsDelivery(t *testing.T) {
	l := NewLoopback()
	a := l.NewClient("a")
	b := l.NewClient("b")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch, err := b.Subscribe(ctx, "t")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Unsubscribe(ctx, "t"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := a.Publish(ctx, "t", []byte(`"x"`), PublishOptions{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected no delivery after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
	}
}
