package quicrelay

import (
	"context"
	"testing"
	"time"

	"pairing/internal/relay"
)

func TestQUICRelayPublishSubscribeRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, err := ListenAndServe(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenAndServe: %v", err)
	}
	defer srv.Close()

	sub, err := Dial(ctx, srv.Addr(), true)
	if err != nil {
		t.Fatalf("Dial subscriber: %v", err)
	}
	defer sub.Close()
	pub, err := Dial(ctx, srv.Addr(), true)
	if err != nil {
		t.Fatalf("Dial publisher: %v", err)
	}
	defer pub.Close()

	ch, err := sub.Subscribe(ctx, "topic-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Give the server a moment to register the subscription before
	// the publish races it; quicrelay has no subscribe-ack handshake.
	time.Sleep(50 * time.Millisecond)

	if err := pub.Publish(ctx, "topic-1", []byte(`{"hello":"quic"}`), relay.PublishOptions{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case raw := <-ch:
		got, err := relay.OpenDelivery(raw, relay.DecryptOptions{})
		if err != nil {
			t.Fatalf("OpenDelivery: %v", err)
		}
		if string(got) != `{"hello":"quic"}` {
			t.Fatalf("got %s", got)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for delivery")
	}
}
