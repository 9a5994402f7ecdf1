package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecrypt(t *testing.T) {
	key := bytes.Repeat([]byte{0x1}, 32)
	plaintext := []byte("sensitive data")

	encoded, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	decrypted, err := Decrypt(encoded, key)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}

	if !bytes.Equal(plaintext, decrypted) {
		t.Fatalf("expected decrypted plaintext to match original, got %s", decrypted)
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	encoded, err := Encrypt([]byte("payload"), bytes.Repeat([]byte{0x1}, 32))
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	if _, err := Decrypt(encoded, bytes.Repeat([]byte{0x2}, 32)); err == nil {
		t.Fatal("expected decrypt with a different key to fail")
	}
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if len(token) == 0 {
		t.Fatal("expected token to be non-empty")
	}

	other, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if token == other {
		t.Fatal("expected tokens to differ")
	}
}

func TestHMACHexSeparatesParts(t *testing.T) {
	key := []byte("k")
	if HMACHex(key, "ab", "c") == HMACHex(key, "a", "bc") {
		t.Fatal("expected part boundaries to affect the digest")
	}
	if HMACHex(key, "a", "b") != HMACHex(key, "a", "b") {
		t.Fatal("expected digest to be deterministic")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("abc", "abc") {
		t.Fatal("expected equal strings to match")
	}
	if ConstantTimeEqual("abc", "abd") || ConstantTimeEqual("abc", "abcd") {
		t.Fatal("expected different strings not to match")
	}
}
