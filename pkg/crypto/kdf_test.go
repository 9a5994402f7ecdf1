package crypto

import (
	"bytes"
	"testing"
)

func TestDeriveKeyIsDeterministicPerInfo(t *testing.T) {
	secret := []byte("master-secret")

	a1, err := DeriveKey(secret, "otp", 32)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	a2, err := DeriveKey(secret, "otp", 32)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := DeriveKey(secret, "oauth-state", 32)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	if !bytes.Equal(a1, a2) {
		t.Fatal("expected identical inputs to derive identical keys")
	}
	if bytes.Equal(a1, b) {
		t.Fatal("expected distinct info strings to derive distinct keys")
	}
	if len(a1) != 32 {
		t.Fatalf("expected 32 byte key, got %d", len(a1))
	}
}

func TestDeriveKeyValidatesInput(t *testing.T) {
	if _, err := DeriveKey(nil, "otp", 32); err == nil {
		t.Fatal("expected missing secret to fail")
	}
	if _, err := DeriveKey([]byte("s"), "", 32); err == nil {
		t.Fatal("expected missing info to fail")
	}
	if _, err := DeriveKey([]byte("s"), "otp", 0); err == nil {
		t.Fatal("expected zero length to fail")
	}
}
