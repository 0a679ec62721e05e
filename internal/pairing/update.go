package pairing

import (
	"context"

	"pairing/internal/jsonrpc"
	"pairing/internal/metadatatoken"
	"pairing/internal/relay"
)

// updateParams is the wire shape of a pairing_update request: the
// only field a settled pairing may update out of band is the sender's
// own peer metadata (spec §4.F invariant — a pairing update may not
// change topic, keys, or permissions). PublicKey identifies which
// side sent the request — required because every relay transport this
// repo ships may echo a publisher's own message back to its own
// subscription, and the symmetric envelope both sides share on a
// settled topic carries no sender identity of its own (spec §4.F).
// MetadataToken is optional attestation (SPEC_FULL supplemented
// feature 5): when present it must verify against the pairing's own
// shared key or the update is rejected outright.
type updateParams struct {
	PublicKey     string         `json:"publicKey"`
	Metadata      map[string]any `json:"metadata"`
	MetadataToken string         `json:"metadataToken,omitempty"`
}

// handleUpdate applies an inbound pairing_update to this side's view
// of the peer (component F). A missing or null metadata object is
// rejected rather than silently accepted as a no-op update, as is a
// request whose claimed publicKey doesn't match the peer on file —
// which is exactly what this side's own outgoing pairing_update looks
// like once it echoes back on the shared settled topic.
func (c *Controller) handleUpdate(topic string, rec Settled, req jsonrpc.Request) {
	var params updateParams
	if err := req.UnmarshalParams(&params); err != nil || params.Metadata == nil {
		c.replyError(rec, req.ID, jsonrpc.CodeInvalidUpdate, invalidUpdate(topic).Error())
		return
	}
	if params.PublicKey == "" || params.PublicKey != rec.Peer.PublicKey {
		c.replyError(rec, req.ID, jsonrpc.CodeInvalidUpdate, invalidUpdate(topic).Error())
		return
	}
	if params.MetadataToken != "" {
		if _, err := metadatatoken.Verify(rec.SharedKey, params.MetadataToken); err != nil {
			c.replyError(rec, req.ID, jsonrpc.CodeInvalidUpdate, invalidUpdate(topic).Error())
			return
		}
	}
	if err := c.settled.Update(topic, func(s *Settled) {
		s.Peer.Metadata = params.Metadata
	}); err != nil {
		c.replyError(rec, req.ID, jsonrpc.CodeInvalidUpdate, notFound(topic).Error())
		return
	}
	c.ackRequest(rec, req.ID)
}

// UpdateMetadata publishes this side's own metadata to its peer over
// an already-settled pairing (spec §4.F). It does not touch the local
// record of the peer, only what the peer will see of us, and returns
// the pre-publish settled record — the update is optimistic, applied
// on the peer's side only once its own pairing_update handler runs.
// metadataToken is optional attestation (SPEC_FULL supplemented
// feature 5); pass "" to omit it.
func (c *Controller) UpdateMetadata(ctx context.Context, topic string, metadata map[string]any, metadataToken string) (Settled, error) {
	rec, err := c.settled.Get(topic)
	if err != nil {
		return Settled{}, notFound(topic)
	}
	req, err := jsonrpc.NewRequest(jsonrpc.MethodPairingUpdate, updateParams{
		PublicKey:     rec.Self.PublicKey,
		Metadata:      metadata,
		MetadataToken: metadataToken,
	})
	if err != nil {
		return Settled{}, err
	}
	raw, err := jsonrpc.Encode(req)
	if err != nil {
		return Settled{}, err
	}
	if err := c.relay.Publish(ctx, topic, raw, relay.PublishOptions{
		Symmetric: &relay.SymmetricOptions{Key: rec.SharedKey},
	}); err != nil {
		return Settled{}, err
	}
	return rec, nil
}
