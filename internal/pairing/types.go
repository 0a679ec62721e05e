// Package pairing implements the pairing controller of spec.md: the
// protocol state machine that establishes, maintains, updates, and
// tears down an end-to-end-encrypted pairing between two peers that
// communicate through a relay.
package pairing

import (
	"time"

	"pairing/internal/cryptoprim"
	"pairing/internal/relay"
)

// DefaultTTL is applied by Propose when the caller does not specify
// one (spec §3, "TTL ... default applied by the builder").
const DefaultTTL = 7 * 24 * time.Hour

// The single JSON-RPC method every fresh pairing whitelists at birth
// is jsonrpc.MethodSessionPropose, a configuration constant rather
// than a literal scattered through the controller; this package uses
// it exclusively through NewProposalPermissions.

// KeyPair is a self side's key material for one pairing. It is a thin
// alias over cryptoprim.KeyPair so this package's record types can
// name it without a package qualifier.
type KeyPair = cryptoprim.KeyPair

// Peer identifies one side of a settled pairing.
type Peer struct {
	PublicKey string         `json:"publicKey"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Signal is the out-of-band channel by which a proposal reaches a
// responder — today, always a shareable URI (spec §3, §6).
type Signal struct {
	Method string       `json:"method"`
	Params SignalParams `json:"params"`
}

// SignalParams carries the URI signal payload.
type SignalParams struct {
	URI string `json:"uri"`
}

// Proposal is what Propose constructs and what a responder receives
// out of band (spec §3).
type Proposal struct {
	Topic       string           `json:"topic"`
	Relay       relay.Descriptor `json:"relay"`
	Proposer    Peer             `json:"proposer"`
	Signal      Signal           `json:"signal"`
	Permissions Permissions      `json:"permissions"`
	TTL         time.Duration    `json:"ttl"`
}

// Outcome is the tagged union a responder reports back to a proposer
// (spec §3). Exactly one of the success or failure shapes is
// populated, selected by Success.
type Outcome struct {
	Success bool `json:"success"`

	// success fields
	Topic     string           `json:"topic,omitempty"`
	Relay     relay.Descriptor `json:"relay,omitempty"`
	Responder Peer             `json:"responder,omitempty"`
	Expiry    time.Time        `json:"expiry,omitempty"`

	// failure field
	Reason string `json:"reason,omitempty"`
}

// SuccessOutcome builds a success Outcome.
func SuccessOutcome(topic string, rl relay.Descriptor, responder Peer, expiry time.Time) Outcome {
	return Outcome{Success: true, Topic: topic, Relay: rl, Responder: responder, Expiry: expiry}
}

// FailureOutcome builds a failure Outcome carrying reason.
func FailureOutcome(reason string) Outcome {
	return Outcome{Success: false, Reason: reason}
}

// PendingStatus is the pending record's tagged-variant discriminant
// (spec §3, §9 "Polymorphism over Pending").
type PendingStatus string

const (
	StatusProposed  PendingStatus = "proposed"
	StatusResponded PendingStatus = "responded"
)

// Pending is a proposal-topic-keyed record tracking the handshake
// before settlement (spec §3).
type Pending struct {
	Status    PendingStatus    `json:"status"`
	Topic     string           `json:"topic"`
	Relay     relay.Descriptor `json:"relay"`
	Self      KeyPair          `json:"self"`
	Proposal  Proposal         `json:"proposal"`
	Outcome   *Outcome         `json:"outcome,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// IsPairingResponded reports whether p has left the proposed state
// (spec §9's isPairingResponded predicate over the tagged variant).
func IsPairingResponded(p Pending) bool {
	return p.Status == StatusResponded
}

// IsPairingFailed reports whether p is responded with a failure
// outcome (spec §9's isPairingFailed predicate).
func IsPairingFailed(p Pending) bool {
	return p.Status == StatusResponded && p.Outcome != nil && !p.Outcome.Success
}

// Settled is a settled-topic-keyed record representing a live pairing
// (spec §3).
type Settled struct {
	Topic       string           `json:"topic"`
	Relay       relay.Descriptor `json:"relay"`
	SharedKey   []byte           `json:"-"`
	Self        KeyPair          `json:"self"`
	Peer        Peer             `json:"peer"`
	Permissions Permissions      `json:"permissions"`
	Expiry      time.Time        `json:"expiry"`
}
