// Package quicrelay implements relay.Client over a QUIC connection:
// one stream per client multiplexes subscribe/unsubscribe/publish
// operations for every topic that client cares about, framed the way
// the teacher's internal/proto package frames any length-delimited
// message on a raw stream.
package quicrelay

import "encoding/json"

type op string

const (
	opPublish     op = "publish"
	opSubscribe   op = "subscribe"
	opUnsubscribe op = "unsubscribe"
)

// wireMessage is the control-and-data envelope multiplexed on a
// client's single stream. Payload already carries a relay envelope
// produced by internal/relay's EncodeEnvelope; this package never
// looks inside it.
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
