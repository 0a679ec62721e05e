package pairing

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"pairing/internal/cryptoprim"
	"pairing/internal/relay"
	"pairing/internal/subscription"
)

// SettleParams are the inputs to the settlement engine (spec §4.C).
type SettleParams struct {
	Relay       relay.Descriptor
	Self        KeyPair
	Peer        Peer
	Permissions Permissions
	TTL         time.Duration
	Expiry      time.Time
}

// settle is the settlement engine (component C): it derives the
// shared key and settled topic, then inserts a settled record keyed
// by that topic with the shared key as its decryption boundary.
//
// settle is idempotent on identical inputs (spec §4.C): deriving the
// same self/peer key pair always yields the same shared key and
// therefore the same topic, and Store.Set on an existing topic
// replaces rather than duplicates.
func settle(settled *subscription.Store[Settled], params SettleParams) (Settled, error) {
	sharedKey, err := cryptoprim.DeriveSharedKey(params.Self, params.Peer.PublicKey)
	if err != nil {
		return Settled{}, fmt.Errorf("pairing: settle: %w", err)
	}
	topic := cryptoprim.SHA256Hex(sharedKey)

	expiry := params.Expiry
	if expiry.IsZero() {
		ttl := params.TTL
		if ttl <= 0 {
			ttl = DefaultTTL
		}
		expiry = time.Now().Add(ttl)
	}

	rl := params.Relay.WithDefaults()
	record := Settled{
		Topic:       topic,
		Relay:       rl,
		SharedKey:   sharedKey,
		Self:        params.Self,
		Peer:        params.Peer,
		Permissions: params.Permissions,
		Expiry:      expiry,
	}

	settled.Set(topic, record, subscription.SetOptions{
		Relay: rl,
		Keys:  subscription.Keys{Key: sharedKey},
	})

	glog.V(1).Infof("pairing: settled topic=%s peer=%s expiry=%s", topic, params.Peer.PublicKey, expiry)
	return record, nil
}
