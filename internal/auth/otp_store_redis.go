package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisOTPPrefix     = "authcore:otp:"
	redisOTPKeyGrace   = time.Minute
	redisOTPMaxRetries = 5
)

// RedisOTPStore keeps pending challenges in a Redis hash per email. Consume runs as an optimistic
// WATCH/MULTI transaction so concurrent confirmations observe each other's writes.
type RedisOTPStore struct {
	client redis.UniversalClient
	cfg    OTPConfig
}

// NewRedisOTPStore constructs a Redis-backed OTPStore.
func NewRedisOTPStore(client redis.UniversalClient, cfg OTPConfig) (*RedisOTPStore, error) {
	if client == nil {
		return nil, errors.New("otp: redis client is required")
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &RedisOTPStore{client: client, cfg: cfg}, nil
}

// Create issues a fresh code for the email, overwriting any pending challenge.
func (s *RedisOTPStore) Create(ctx context.Context, email string) (OTPChallenge, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return OTPChallenge{}, ErrInvalidEmail
	}

	code, err := s.cfg.Generator(s.cfg.Length)
	if err != nil {
		return OTPChallenge{}, fmt.Errorf("otp: generate code: %w", err)
	}

	expiresAt := s.cfg.Clock().Add(s.cfg.TTL)
	key := redisOTPKey(email)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"challenge", uuid.NewString(),
			"digest", s.cfg.digest(email, code),
			"expires_at", strconv.FormatInt(expiresAt.UnixMilli(), 10),
			"attempts", strconv.Itoa(s.cfg.MaxAttempts),
		)
		// The key outlives the logical expiry so Consume can report Expired rather than NotFound.
		pipe.PExpire(ctx, key, s.cfg.TTL+redisOTPKeyGrace)
		return nil
	})
	if err != nil {
		return OTPChallenge{}, fmt.Errorf("otp: store challenge: %w", err)
	}

	return OTPChallenge{Email: email, Code: code, ExpiresAt: expiresAt}, nil
}

// Consume validates the candidate code against the pending challenge.
func (s *RedisOTPStore) Consume(ctx context.Context, email, code string) error {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" {
		return ErrInvalidEmail
	}
	if code == "" {
		return ErrInvalidCode
	}

	key := redisOTPKey(email)
	for attempt := 0; attempt < redisOTPMaxRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			return s.consume(ctx, tx, key, email, code)
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errors.New("otp: consume: too much contention")
}

func (s *RedisOTPStore) consume(ctx context.Context, tx *redis.Tx, key, email, code string) error {
	fields, err := tx.HGetAll(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("otp: load challenge: %w", err)
	}
	if len(fields) == 0 {
		return ErrOTPNotFound
	}

	expiresMillis, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return fmt.Errorf("otp: corrupt challenge: %w", err)
	}
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return fmt.Errorf("otp: corrupt challenge: %w", err)
	}

	del := func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	}

	if !s.cfg.Clock().Before(time.UnixMilli(expiresMillis)) {
		if _, err := tx.TxPipelined(ctx, del); err != nil {
			return err
		}
		return ErrOTPExpired
	}

	if !s.cfg.matches(email, code, fields["digest"]) {
		attempts--
		if attempts <= 0 {
			if _, err := tx.TxPipelined(ctx, del); err != nil {
				return err
			}
			return ErrOTPAttemptsExhausted
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "attempts", strconv.Itoa(attempts))
			return nil
		})
		if err != nil {
			return err
		}
		return ErrOTPMismatch
	}

	_, err = tx.TxPipelined(ctx, del)
	return err
}

func redisOTPKey(email string) string {
	return redisOTPPrefix + email
}

var _ OTPStore = (*RedisOTPStore)(nil)
