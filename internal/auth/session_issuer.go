package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/charlesng35/authcore/internal/cache"
)

// DefaultSessionTTL defines the fallback validity period for session tokens.
const DefaultSessionTTL = 24 * time.Hour

const revokedSessionPrefix = "session:revoked:"

// SessionConfig bundles the configuration required to build a SessionIssuer.
type SessionConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
	Clock  func() time.Time
	// Denylist records revoked token ids. Revocation is unavailable when nil.
	Denylist cache.Store
}

// Session is an issued session token and its validity window.
type Session struct {
	Token     string    `json:"token"`
	ID        string    `json:"-"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionClaims represents the claims embedded in issued session tokens.
type SessionClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// SessionIssuer mints and verifies HS256 session tokens bound to a user id.
type SessionIssuer struct {
	secret   []byte
	issuer   string
	ttl      time.Duration
	now      func() time.Time
	denylist cache.Store
}

// NewSessionIssuer constructs a SessionIssuer.
func NewSessionIssuer(cfg SessionConfig) (*SessionIssuer, error) {
	if cfg.Secret == "" {
		return nil, errors.New("session: secret must be provided")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &SessionIssuer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		ttl:      ttl,
		now:      now,
		denylist: cfg.Denylist,
	}, nil
}

// TTL reports the lifetime of issued sessions.
func (s *SessionIssuer) TTL() time.Duration {
	return s.ttl
}

// Issue produces a signed session token for the user.
func (s *SessionIssuer) Issue(userID string) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, fmt.Errorf("%w: user id is required", ErrSessionIssuance)
	}

	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)
	id := uuid.NewString()

	claims := &SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   userID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("%w: sign token: %v", ErrSessionIssuance, err)
	}

	return Session{
		Token:     signed,
		ID:        id,
		UserID:    userID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify parses and validates a session token. Failures wrap ErrSessionExpired or ErrSessionInvalid.
func (s *SessionIssuer) Verify(ctx context.Context, token string) (*SessionClaims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	if s.denylist != nil {
		_, revoked, err := s.denylist.Get(ctx, revokedSessionPrefix+claims.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: check revocation: %v", ErrSessionInvalid, err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: revoked", ErrSessionInvalid)
		}
	}

	return claims, nil
}

// Revoke denylists the token until its natural expiry. Tokens that are already invalid or
// expired need no revocation and are ignored.
func (s *SessionIssuer) Revoke(ctx context.Context, token string) error {
	if s.denylist == nil {
		return errors.New("session: revocation store not configured")
	}

	claims, err := s.parse(token)
	if err != nil {
		return nil
	}

	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return nil
	}
	if err := s.denylist.Set(ctx, revokedSessionPrefix+claims.ID, []byte("1"), remaining); err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}

func (s *SessionIssuer) parse(token string) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is empty", ErrSessionInvalid)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims SessionClaims
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}

	if claims.UserID == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing claims", ErrSessionInvalid)
	}
	return &claims, nil
}
