// Package wsrelay implements relay.Client over a WebSocket connection.
// Unlike quicrelay, WebSocket already delimits messages, so this
// package skips length-prefixed framing and sends one JSON envelope
// per WebSocket text message.
package wsrelay

import "encoding/json"

type op string

const (
	opPublish     op = "publish"
	opSubscribe   op = "subscribe"
	opUnsubscribe op = "unsubscribe"
)

type wireMessage struct {
	Op      op     `json:"op"`
	Topic   string `json:"topic"`
	Payload []byte `json:"payload,omitempty"`
}

func encodeMessage(m wireMessage) ([]byte, error) {
	return json.Marshal(m)
}

func decodeMessage(raw []byte) (wireMessage, error) {
	var m wireMessage
	err := json.Unmarshal(raw, &m)
	return m, err
}
