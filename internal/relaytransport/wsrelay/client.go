package wsrelay

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"pairing/internal/relay"
)

// Client is a relay.Client backed by a single WebSocket connection
// shared by every topic this process subscribes to or publishes on.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]chan []byte
	closed bool
}

var _ relay.Client = (*Client)(nil)

// Dial connects to a wsrelay Server at the given ws:// or wss:// URL.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, subs: make(map[string]chan []byte)}
	go c.readLoop()
	return c, nil
}

// Close tears down the underlying WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	for topic, ch := range c.subs {
		close(ch)
		delete(c.subs, topic)
	}
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.closeSubs()
			return
		}
		msg, err := decodeMessage(raw)
		if err != nil {
			glog.V(1).Infof("wsrelay: decode inbound message: %v", err)
			continue
		}
		if msg.Op != opPublish {
			continue
		}
		c.mu.Lock()
		ch, ok := c.subs[msg.Topic]
		c.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- msg.Payload:
		default:
			glog.V(1).Infof("wsrelay: subscriber channel for topic=%s saturated, dropping", msg.Topic)
		}
	}
}

func (c *Client) closeSubs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, ch := range c.subs {
		close(ch)
		delete(c.subs, topic)
	}
}

func (c *Client) Publish(ctx context.Context, topic string, payload []byte, opts relay.PublishOptions) error {
	framed, err := relay.EncodeEnvelope(payload, opts)
	if err != nil {
		return err
	}
	return c.send(wireMessage{Op: opPublish, Topic: topic, Payload: framed})
}

func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, relay.ErrClosed
	}
	c.subs[topic] = ch
	c.mu.Unlock()

	if err := c.send(wireMessage{Op: opSubscribe, Topic: topic}); err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	ch, ok := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()
	if ok {
		close(ch)
	}
	return c.send(wireMessage{Op: opUnsubscribe, Topic: topic})
}

func (c *Client) send(msg wireMessage) error {
	raw, err := encodeMessage(msg)
	if err != nil {
		return fmt.Errorf("wsrelay: encode message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}
