package pairing

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"pairing/internal/cryptoprim"
	"pairing/internal/relay"
	"pairing/internal/subscription"
)

// ProposeParams configures a single Propose call (spec §4.B).
type ProposeParams struct {
	Relay relay.Descriptor
	TTL   time.Duration
}

// propose is the proposal builder (component B): it allocates a
// fresh topic and key pair, constructs the shareable URI signal, and
// inserts a proposed pending record. It never blocks on settlement.
func propose(pending *subscription.Store[Pending], params ProposeParams) (Pending, error) {
	topic, err := cryptoprim.GenerateRandomTopic()
	if err != nil {
		return Pending{}, fmt.Errorf("pairing: propose: %w", err)
	}
	self, err := cryptoprim.GenerateKeyPair()
	if err != nil {
		return Pending{}, fmt.Errorf("pairing: propose: %w", err)
	}

	rl := params.Relay.WithDefaults()
	ttl := params.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	uri := FormatURI(topic, self.PublicKey, rl)
	proposal := Proposal{
		Topic:       topic,
		Relay:       rl,
		Proposer:    Peer{PublicKey: self.PublicKey},
		Signal:      Signal{Method: "pairing_uri", Params: SignalParams{URI: uri}},
		Permissions: NewProposalPermissions(),
		TTL:         ttl,
	}

	record := Pending{
		Status:    StatusProposed,
		Topic:     topic,
		Relay:     rl,
		Self:      self,
		Proposal:  proposal,
		CreatedAt: time.Now(),
	}

	// No encrypt keys yet: the proposal topic only ever receives the
	// responder's single pairing_respond reply, which the responder
	// seals to this proposer's public key directly (see
	// internal/relay's SealOptions) — the pending store only needs
	// its own key pair on file to open that reply (spec §4.E).
	pending.Set(topic, record, subscription.SetOptions{
		Relay: rl,
		Keys:  subscription.Keys{Self: &self},
	})

	glog.V(1).Infof("pairing: proposed topic=%s ttl=%s", topic, ttl)
	return record, nil
}
