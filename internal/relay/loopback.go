package relay

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

// Loopback is an in-memory relay shared by every Client obtained from
// it via Loopback.NewClient, used by the pairing controller's own
// round-trip tests and by cmd/paircli's --transport=loopback mode. Subscriber
// bookkeeping mirrors the teacher's SessionStore/InviteStore shape:
// a mutex-guarded map keyed by topic, holding a slice of channels.
type Loopback struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

// NewLoopback constructs an empty in-memory relay.
func NewLoopback() *Loopback {
	return &Loopback{subs: make(map[string][]chan []byte)}
}

// NewClient returns a Client bound to this relay. label is used only
// in debug logging to tell two in-process peers apart.
func (l *Loopback) NewClient(label string) *LoopbackClient {
	return &LoopbackClient{relay: l, label: label}
}

// LoopbackClient is a relay.Client backed by a Loopback.
type LoopbackClient struct {
	relay  *Loopback
	label  string
	closed bool
	mu     sync.Mutex
	owned  map[string]chan []byte
}

var _ Client = (*LoopbackClient)(nil)

func (c *LoopbackClient) Publish(ctx context.Context, topic string, payload []byte, opts PublishOptions) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	framed, err := encodeEnvelope(payload, opts)
	if err != nil {
		return err
	}
	glog.V(2).Infof("relay/loopback[%s]: publish topic=%s bytes=%d", c.label, topic, len(framed))

	c.relay.mu.Lock()
	subs := append([]chan []byte(nil), c.relay.subs[topic]...)
	c.relay.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- framed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *LoopbackClient) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	ch := make(chan []byte, 16)
	c.relay.mu.Lock()
	c.relay.subs[topic] = append(c.relay.subs[topic], ch)
	c.relay.mu.Unlock()

	c.mu.Lock()
	if c.owned == nil {
		c.owned = make(map[string]chan []byte)
	}
	c.owned[topic] = ch
	c.mu.Unlock()

	glog.V(2).Infof("relay/loopback[%s]: subscribe topic=%s", c.label, topic)
	return ch, nil
}

func (c *LoopbackClient) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	ch, ok := c.owned[topic]
	delete(c.owned, topic)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	c.relay.mu.Lock()
	subs := c.relay.subs[topic]
	for i, s := range subs {
		if s == ch {
			c.relay.subs[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	c.relay.mu.Unlock()
	close(ch)
	glog.V(2).Infof("relay/loopback[%s]: unsubscribe topic=%s", c.label, topic)
	return nil
}
