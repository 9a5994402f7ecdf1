package app

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/charlesng35/authcore/pkg/crypto"
)

const (
	// MinSessionSecretBytes is the shortest accepted session secret once decoded.
	MinSessionSecretBytes = 32

	authKeyBytes   = 32
	otpDigestInfo  = "otp-digest"
	oauthStateInfo = "oauth-state"
)

// AuthKeys are the purpose-bound keys derived from the session secret.
type AuthKeys struct {
	OTPDigest  []byte
	OAuthState []byte
}

// DeriveAuthKeys expands the session secret into independent keys for OTP digests and OAuth
// state encryption, so that no key is used for more than one purpose.
func DeriveAuthKeys(secret string) (AuthKeys, error) {
	raw, err := DecodeKey(secret)
	if err != nil {
		return AuthKeys{}, fmt.Errorf("session secret: %w", err)
	}
	if len(raw) < MinSessionSecretBytes {
		return AuthKeys{}, fmt.Errorf("session secret must be at least %d bytes (current: %d)", MinSessionSecretBytes, len(raw))
	}

	digest, err := crypto.DeriveKey(raw, otpDigestInfo, authKeyBytes)
	if err != nil {
		return AuthKeys{}, err
	}
	state, err := crypto.DeriveKey(raw, oauthStateInfo, authKeyBytes)
	if err != nil {
		return AuthKeys{}, err
	}
	return AuthKeys{OTPDigest: digest, OAuthState: state}, nil
}

// DecodeKey decodes a key from hex or base64 encoding to raw bytes.
// It tries hex first (since runtime defaults use hex), then base64 variants.
// If all decoding attempts fail, it treats the input as raw bytes.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, fmt.Errorf("key value is empty")
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return decoded, nil
		}
	}

	// Support both standard and raw base64 encodings
	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}

	return []byte(v), nil
}

// KeyByteLength returns the decoded byte length of a key string, or 0 for a blank one.
func KeyByteLength(value string) (int, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	decoded, err := DecodeKey(value)
	if err != nil {
		return 0, err
	}
	return len(decoded), nil
}
