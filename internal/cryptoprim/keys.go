// Package cryptoprim implements the crypto primitives the pairing
// controller treats as an external collaborator: key-pair generation,
// ECDH shared-key derivation, topic hashing and random topic
// allocation. The suite is fixed: X25519 for key agreement, SHA-256
// for topic derivation (spec-mandated), XChaCha20-Poly1305 for the
// subscription-store encryption boundary.
package cryptoprim

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// TopicSize is the length in bytes of a proposal or settled topic.
	TopicSize = 32
	// PublicKeySize is the length in bytes of an X25519 public key.
	PublicKeySize = 32
	// XKeySize is the symmetric key length XChaCha20-Poly1305 expects.
	XKeySize = chacha20poly1305.KeySize
	// XNonceSize is the extended nonce length XChaCha20-Poly1305 expects.
	XNonceSize = chacha20poly1305.NonceSizeX
)

// KeyPair is a self side's X25519 identity for a single pairing.
// The private key is unexported; callers hold it opaquely and pass it
// back into DeriveSharedKey, and only PrivateKeyBytes hands out a copy.
type KeyPair struct {
	PublicKey  string // hex-encoded
	privateKey []byte
}

func (kp KeyPair) String() string   { return "cryptoprim.KeyPair{PublicKey: " + kp.PublicKey + ", PrivateKey: REDACTED}" }
func (kp KeyPair) GoString() string { return kp.String() }

// PrivateKeyBytes exposes the raw private key material to callers that
// must persist a pending record (the controller keeps it only in
// memory, but the type is not hidden from the same-process caller who
// generated it).
func (kp KeyPair) PrivateKeyBytes() []byte {
	out := make([]byte, len(kp.privateKey))
	copy(out, kp.privateKey)
	return out
}

// GenerateKeyPair allocates a fresh X25519 key pair for one side of a
// pairing.
func GenerateKeyPair() (KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("cryptoprim: generate key pair: %w", err)
	}
	return KeyPair{
		PublicKey:  hex.EncodeToString(priv.PublicKey().Bytes()),
		privateKey: priv.Bytes(),
	}, nil
}

// KeyPairFromPrivate reconstructs a KeyPair from previously generated
// private key bytes, used when a pending record is rehydrated from a
// subscription store.
func KeyPairFromPrivate(privateKey []byte) (KeyPair, error) {
	priv, err := ecdh.X25519().NewPrivateKey(privateKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("cryptoprim: invalid private key: %w", err)
	}
	return KeyPair{
		PublicKey:  hex.EncodeToString(priv.PublicKey().Bytes()),
		privateKey: priv.Bytes(),
	}, nil
}

// DeriveSharedKey performs the ECDH agreement between a local private
// key and a peer's hex-encoded public key.
func DeriveSharedKey(self KeyPair, peerPublicKeyHex string) ([]byte, error) {
	peerPub, err := hex.DecodeString(peerPublicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: decode peer public key: %w", err)
	}
	if len(self.privateKey) == 0 {
		return nil, errors.New("cryptoprim: self key pair has no private key material")
	}
	priv, err := ecdh.X25519().NewPrivateKey(self.privateKey)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: invalid self private key: %w", err)
	}
	pub, err := ecdh.X25519().NewPublicKey(peerPub)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: invalid peer public key: %w", err)
	}
	shared, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: ecdh: %w", err)
	}
	return shared, nil
}

// SHA256Hex returns the lower-case hex-encoded SHA-256 digest of b,
// used to derive the settled topic from the shared key.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// GenerateRandomTopic allocates a fresh 32-byte hex-encoded topic,
// used for proposal topics which must be unguessable and are not
// derived from any key material.
func GenerateRandomTopic() (string, error) {
	buf := make([]byte, TopicSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptoprim: generate random topic: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// SealBoundary encrypts payload for transit at a subscription store's
// encryption boundary. aad binds the ciphertext to the topic it will
// be published on so a message cannot be replayed onto a different
// topic undetected.
func SealBoundary(key, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	if len(key) != XKeySize {
		return nil, nil, fmt.Errorf("cryptoprim: bad key size: need %d", XKeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, XNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, aad)
	return nonce, ciphertext, nil
}

// OpenBoundary decrypts a payload sealed by SealBoundary.
func OpenBoundary(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(key) != XKeySize {
		return nil, fmt.Errorf("cryptoprim: bad key size: need %d", XKeySize)
	}
	if len(nonce) != XNonceSize {
		return nil, fmt.Errorf("cryptoprim: bad nonce size: need %d", XNonceSize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, aad)
}
