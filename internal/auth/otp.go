package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/charlesng35/authcore/pkg/crypto"
)

// OTP defaults.
const (
	DefaultOTPLength      = 6
	DefaultOTPTTL         = 10 * time.Minute
	DefaultOTPMaxAttempts = 5
)

// OTPStore holds at most one pending challenge per email.
type OTPStore interface {
	// Create issues a fresh code for email, replacing any pending challenge and resetting the
	// attempt counter. The returned code must be delivered out of band.
	Create(ctx context.Context, email string) (OTPChallenge, error)
	// Consume checks code against the pending challenge for email. It returns nil exactly once per
	// issued code; otherwise one of ErrOTPNotFound, ErrOTPExpired, ErrOTPMismatch or
	// ErrOTPAttemptsExhausted.
	Consume(ctx context.Context, email, code string) error
}

// OTPChallenge is the result of OTPStore.Create.
type OTPChallenge struct {
	Email     string
	Code      string
	ExpiresAt time.Time
}

// CodeGenerator produces a code of the requested length.
type CodeGenerator func(length int) (string, error)

// OTPConfig configures the OTP stores.
type OTPConfig struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
	// DigestKey keys the HMAC used to store codes. Required.
	DigestKey []byte
	Clock     func() time.Time
	Generator CodeGenerator
}

func (c OTPConfig) withDefaults() (OTPConfig, error) {
	if len(c.DigestKey) == 0 {
		return c, errors.New("otp: digest key is required")
	}
	if c.Length <= 0 {
		c.Length = DefaultOTPLength
	}
	if c.TTL <= 0 {
		c.TTL = DefaultOTPTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultOTPMaxAttempts
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Generator == nil {
		c.Generator = NumericCode
	}
	return c, nil
}

func (c OTPConfig) digest(email, code string) string {
	return crypto.HMACHex(c.DigestKey, email, code)
}

func (c OTPConfig) matches(email, code, digest string) bool {
	return crypto.ConstantTimeEqual(c.digest(email, code), digest)
}

// NumericCode returns a uniformly distributed decimal code of the given length.
func NumericCode(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("otp: code length must be positive")
	}
	ten := big.NewInt(10)
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// NormalizeEmail produces the canonical identity key for an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
