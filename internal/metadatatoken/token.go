// Package metadatatoken implements optional peer-metadata attestation
// for a settled pairing: a JWT whose claims carry a peer's metadata,
// signed with the pairing's own shared key. A pairing's relay traffic
// is already authenticated under that same key (internal/relay's
// symmetric AEAD boundary), so this exists for the case a caller wants
// to hand a peer's attested metadata to a third party without handing
// over the shared key itself — grounded on the claims-parsing shape of
// a bearer JWT the way the teacher's own peer identification
// (ParseByJwtUnverified in the wider example pool) does, but verified
// rather than trusted blind.
package metadatatoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by Verify for a token that fails
// signature verification, has expired, or was signed with an
// unexpected algorithm.
var ErrInvalidToken = errors.New("metadatatoken: invalid token")

// Claims is the JWT claim set: a peer's self-reported metadata plus
// the standard registered claims for expiry.
type Claims struct {
	Metadata map[string]any `json:"metadata"`
	jwt.RegisteredClaims
}

// Sign produces a JWT over metadata using key as an HMAC-SHA256
// signing key. In practice key is a settled pairing's shared key, so
// only the two paired peers can produce or verify a valid token.
func Sign(key []byte, metadata map[string]any, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Metadata: metadata,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// Verify checks tokenString's signature and expiry against key and
// returns the attested metadata.
func Verify(key []byte, tokenString string) (map[string]any, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims.Metadata, nil
}
