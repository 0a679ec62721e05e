package pairing

import (
	"time"

	"pairing/internal/metadatatoken"
)

// defaultAttestationTTL bounds how long a signed metadata token is
// valid for, independent of the pairing's own expiry.
const defaultAttestationTTL = time.Hour

// SignMetadataToken produces a bearer token attesting the peer's
// metadata on a settled pairing, so a caller can hand that attestation
// to a third party without disclosing the pairing's shared key
// (SPEC_FULL supplemented feature 5). It signs whatever metadata is on
// file right now, not a caller-supplied value, so the token cannot
// attest to metadata the peer never actually sent.
func (c *Controller) SignMetadataToken(topic string) (string, error) {
	rec, err := c.settled.Get(topic)
	if err != nil {
		return "", notFound(topic)
	}
	return metadatatoken.Sign(rec.SharedKey, rec.Peer.Metadata, defaultAttestationTTL)
}

// VerifyMetadataToken checks a token produced by SignMetadataToken (by
// either side of the same pairing, since both hold the shared key) and
// returns the attested metadata.
func (c *Controller) VerifyMetadataToken(topic string, token string) (map[string]any, error) {
	rec, err := c.settled.Get(topic)
	if err != nil {
		return nil, notFound(topic)
	}
	return metadatatoken.Verify(rec.SharedKey, token)
}
