package wsrelay

import (
	"context"
	"strings"
	"testing"
	"time"

	"pairing/internal/relay"
)

func TestWSRelayPublishSubscribeRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, err := ListenAndServe("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenAndServe: %v", err)
	}
	defer srv.Close()
	url := "ws://" + srv.Addr() + "/"

	sub, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial subscriber: %v", err)
	}
	defer sub.Close()
	pub, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial publisher: %v", err)
	}
	defer pub.Close()

	ch, err := sub.Subscribe(ctx, "topic-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := pub.Publish(ctx, "topic-1", []byte(`{"hello":"ws"}`), relay.PublishOptions{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case raw := <-ch:
		got, err := relay.OpenDelivery(raw, relay.DecryptOptions{})
		if err != nil {
			t.Fatalf("OpenDelivery: %v", err)
		}
		if !strings.Contains(string(got), "ws") {
			t.Fatalf("got %s", got)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for delivery")
	}
}
