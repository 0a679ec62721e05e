package relay

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"pairing/internal/cryptoprim"
)

// wireEnvelope is what actually crosses the relay. A pairing's wire
// traffic is either sealed to a specific recipient public key (used
// for the pending-topic handshake: the responder's pairing_respond,
// which must reach the proposer before any shared key exists, and the
// proposer's acknowledgement back to it) or encrypted under a
// symmetric key already agreed by both sides (every settled-topic
// message).
//
// This mirrors the sealed-box vs. symmetric-box split the teacher's
// own crypto package draws between GenerateEphemeral/X25519Shared
// (per-message agreement) and the XSeal/XOpen symmetric AEAD.
type wireEnvelope struct {
	Plaintext       json.RawMessage `json:"plaintext,omitempty"`
	SenderPublicKey string          `json:"senderPublicKey,omitempty"`
	Nonce           string          `json:"nonce,omitempty"`
	Ciphertext      string          `json:"ciphertext,omitempty"`
}

// SealOptions seals a payload to a specific recipient using one-shot
// ECDH between the sender's own key pair and the recipient's public
// key, the way the responder's pairing_respond reaches the proposer
// before a shared settled key exists.
type SealOptions struct {
	Self          cryptoprim.KeyPair
	PeerPublicKey string
}

// SymmetricOptions encrypts a payload under an already-agreed key,
// used for every settled-topic message.
type SymmetricOptions struct {
	Key []byte
}

// PublishOptions selects how (if at all) Publish encrypts payload
// before handing it to the underlying transport. At most one of Seal
// or Symmetric should be set; if neither is set the payload travels
// as plaintext JSON. The pairing controller always sets one of the
// two.
type PublishOptions struct {
	Seal      *SealOptions
	Symmetric *SymmetricOptions
}

func encodeEnvelope(payload []byte, opts PublishOptions) ([]byte, error) {
	switch {
	case opts.Seal != nil:
		shared, err := cryptoprim.DeriveSharedKey(opts.Seal.Self, opts.Seal.PeerPublicKey)
		if err != nil {
			return nil, fmt.Errorf("relay: seal envelope: %w", err)
		}
		nonce, ciphertext, err := cryptoprim.SealBoundary(shared, payload, nil)
		if err != nil {
			return nil, fmt.Errorf("relay: seal envelope: %w", err)
		}
		return json.Marshal(wireEnvelope{
			SenderPublicKey: opts.Seal.Self.PublicKey,
			Nonce:           hex.EncodeToString(nonce),
			Ciphertext:      hex.EncodeToString(ciphertext),
		})
	case opts.Symmetric != nil:
		nonce, ciphertext, err := cryptoprim.SealBoundary(opts.Symmetric.Key, payload, nil)
		if err != nil {
			return nil, fmt.Errorf("relay: symmetric envelope: %w", err)
		}
		return json.Marshal(wireEnvelope{
			Nonce:      hex.EncodeToString(nonce),
			Ciphertext: hex.EncodeToString(ciphertext),
		})
	default:
		return json.Marshal(wireEnvelope{Plaintext: json.RawMessage(payload)})
	}
}

// DecryptOptions mirrors the two ways a subscription store may be
// able to open an inbound envelope: a static self key pair (sealed
// box, pending topics) or a symmetric key (settled topics).
type DecryptOptions struct {
	Self *cryptoprim.KeyPair
	Key  []byte
}

// decodeEnvelope opens a wireEnvelope using whichever key material
// opts supplies. A plaintext envelope always decodes regardless of
// opts.
func decodeEnvelope(raw []byte, opts DecryptOptions) ([]byte, error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("relay: decode envelope: %w", err)
	}
	if env.Plaintext != nil {
		return env.Plaintext, nil
	}
	nonce, err := hex.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("relay: decode nonce: %w", err)
	}
	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("relay: decode ciphertext: %w", err)
	}
	switch {
	case env.SenderPublicKey != "":
		if opts.Self == nil {
			return nil, fmt.Errorf("relay: sealed envelope but no self key pair registered for this topic")
		}
		shared, err := cryptoprim.DeriveSharedKey(*opts.Self, env.SenderPublicKey)
		if err != nil {
			return nil, fmt.Errorf("relay: open sealed envelope: %w", err)
		}
		return cryptoprim.OpenBoundary(shared, nonce, ciphertext, nil)
	default:
		if len(opts.Key) == 0 {
			return nil, fmt.Errorf("relay: symmetric envelope but no key registered for this topic")
		}
		return cryptoprim.OpenBoundary(opts.Key, nonce, ciphertext, nil)
	}
}
