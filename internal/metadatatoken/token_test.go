package metadatatoken

import (
	"testing"
	"time"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	metadata := map[string]any{"name": "wallet-app", "url": "https://example.test"}

	token, err := Sign(key, metadata, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	got, err := Verify(key, token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got["name"] != metadata["name"] {
		t.Fatalf("name = %v, want %v", got["name"], metadata["name"])
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	other := []byte("fedcba9876543210fedcba9876543210")

	token, err := Sign(key, map[string]any{"name": "app"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := Verify(other, token); err == nil {
		t.Fatal("expected verification to fail with the wrong key")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	token, err := Sign(key, map[string]any{"name": "app"}, -time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := Verify(key, token); err == nil {
		t.Fatal("expected verification to fail for an expired token")
	}
}
