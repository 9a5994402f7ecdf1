package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands a master secret into a purpose-bound subkey using HKDF-SHA256.
// Distinct info strings yield independent keys from the same secret.
func DeriveKey(secret []byte, info string, length int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("hkdf: secret is required")
	}
	if info == "" {
		return nil, errors.New("hkdf: info is required")
	}
	if length <= 0 || length > 255*sha256.Size {
		return nil, fmt.Errorf("hkdf: invalid key length %d", length)
	}

	reader := hkdf.New(sha256.New, secret, nil, []byte(info))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("hkdf: expand: %w", err)
	}
	return key, nil
}
