// Package relay implements the relay client contract spec.md §1
// treats as an external collaborator, plus a loopback implementation
// used by the pairing controller's own tests. Two concrete network
// transports (quicrelay, wsrelay) implementing it live under
// internal/relaytransport.
package relay

import (
	"context"
	"fmt"
)

// DefaultProtocol is the relay protocol name attached to a Descriptor
// when the caller does not specify one (spec §3, "default protocol
// when unspecified").
const DefaultProtocol = "irn"

// Descriptor names a relay and, optionally, protocol-specific
// parameters. It is opaque to everything except a concrete transport.
type Descriptor struct {
	Protocol string            `json:"protocol"`
	Params   map[string]string `json:"params,omitempty"`
}

// WithDefaults fills in Protocol when the caller left it blank.
func (d Descriptor) WithDefaults() Descriptor {
	if d.Protocol == "" {
		d.Protocol = DefaultProtocol
	}
	return d
}

// Client is the relay client contract: publish an already-framed
// payload to a topic, and receive an inbound channel of raw payloads
// published to a topic by anyone (including, on some transports, the
// publisher itself — callers must be prepared to ignore echoes).
type Client interface {
	Publish(ctx context.Context, topic string, payload []byte, opts PublishOptions) error
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
	Unsubscribe(ctx context.Context, topic string) error
}

// ErrClosed is returned by a Client whose underlying transport has
// been torn down.
var ErrClosed = fmt.Errorf("relay: client closed")

// EncodeEnvelope frames payload under opts the way every Client
// implementation in this package does inside Publish: sealed to a
// peer public key, symmetric under an agreed key, or plaintext. It is
// exported so a Client implementation only has to call it once and so
// tests can construct wire-shaped fixtures directly.
func EncodeEnvelope(payload []byte, opts PublishOptions) ([]byte, error) {
	return encodeEnvelope(payload, opts)
}

// OpenDelivery decodes a raw delivery from Subscribe's channel using
// the decrypt options a subscription store has on file for that
// topic.
func OpenDelivery(raw []byte, opts DecryptOptions) ([]byte, error) {
	return decodeEnvelope(raw, opts)
}
