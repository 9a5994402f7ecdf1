package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/authcore/internal/auth/providers"
	"github.com/charlesng35/authcore/pkg/crypto"
)

// DefaultStateTTL bounds the time between starting an OAuth login and its callback.
const DefaultStateTTL = 10 * time.Minute

// StateCodec encrypts the OAuth login state so the callback can be validated without server-side
// storage.
type StateCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// StatePayload captures data required to validate the callback and resume the login flow.
type StatePayload struct {
	Provider  string    `json:"p"`
	ReturnURL string    `json:"r,omitempty"`
	Nonce     string    `json:"n"`
	PKCE      string    `json:"k"`
	IssuedAt  time.Time `json:"iat"`
}

// NewStateCodec constructs a StateCodec using the provided symmetric encryption key and lifetime.
func NewStateCodec(key []byte, ttl time.Duration, now func() time.Time) (*StateCodec, error) {
	length := len(key)
	if length != 16 && length != 24 && length != 32 {
		return nil, fmt.Errorf("oauth state: key must be 16, 24, or 32 bytes, got %d", length)
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if now == nil {
		now = time.Now
	}
	return &StateCodec{key: key, ttl: ttl, now: now}, nil
}

// Encode encrypts the supplied payload into a compact state string.
func (c *StateCodec) Encode(payload StatePayload) (string, error) {
	payload.Provider = providers.NormaliseType(payload.Provider)
	if payload.Provider == "" {
		return "", fmt.Errorf("oauth state: provider is required")
	}
	payload.IssuedAt = c.now().UTC()

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("oauth state: marshal payload: %w", err)
	}

	encoded, err := crypto.Encrypt(raw, c.key)
	if err != nil {
		return "", fmt.Errorf("oauth state: encrypt payload: %w", err)
	}
	return encoded, nil
}

// Decode decrypts the state string back into a payload while enforcing expiry. All failures wrap
// ErrOAuthState.
func (c *StateCodec) Decode(token string) (StatePayload, error) {
	var payload StatePayload
	if strings.TrimSpace(token) == "" {
		return payload, fmt.Errorf("%w: empty", ErrOAuthState)
	}

	raw, err := crypto.Decrypt(token, c.key)
	if err != nil {
		return payload, fmt.Errorf("%w: decrypt", ErrOAuthState)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("%w: decode", ErrOAuthState)
	}
	if payload.Provider == "" || payload.Nonce == "" || payload.IssuedAt.IsZero() {
		return payload, fmt.Errorf("%w: incomplete", ErrOAuthState)
	}
	if c.now().UTC().After(payload.IssuedAt.Add(c.ttl)) {
		return payload, fmt.Errorf("%w: expired", ErrOAuthState)
	}
	return payload, nil
}
