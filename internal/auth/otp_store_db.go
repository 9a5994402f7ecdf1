package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/authcore/internal/models"
)

var errChallengeReplaced = errors.New("otp: challenge replaced")

// DBOTPStore keeps pending challenges in the primary database. Every mutation after the initial
// read is conditioned on the challenge id, so a confirmation racing a new request or another
// confirmation can never act on a challenge it did not read.
type DBOTPStore struct {
	db  *gorm.DB
	cfg OTPConfig
}

// NewDBOTPStore constructs a database-backed OTPStore.
func NewDBOTPStore(db *gorm.DB, cfg OTPConfig) (*DBOTPStore, error) {
	if db == nil {
		return nil, errors.New("otp: db is required")
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &DBOTPStore{db: db, cfg: cfg}, nil
}

// Create issues a fresh code for the email, overwriting any pending challenge.
func (s *DBOTPStore) Create(ctx context.Context, email string) (OTPChallenge, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return OTPChallenge{}, ErrInvalidEmail
	}

	code, err := s.cfg.Generator(s.cfg.Length)
	if err != nil {
		return OTPChallenge{}, fmt.Errorf("otp: generate code: %w", err)
	}

	now := s.cfg.Clock()
	record := models.PendingOTP{
		Email:             email,
		Challenge:         uuid.NewString(),
		CodeDigest:        s.cfg.digest(email, code),
		ExpiresAt:         now.Add(s.cfg.TTL),
		AttemptsRemaining: s.cfg.MaxAttempts,
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"challenge", "code_digest", "expires_at", "attempts_remaining", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return OTPChallenge{}, fmt.Errorf("otp: store challenge: %w", err)
	}

	return OTPChallenge{Email: email, Code: code, ExpiresAt: record.ExpiresAt}, nil
}

// Consume validates the candidate code against the pending challenge. A challenge replaced by
// Create while the code was being checked is re-read once, so a caller holding the newest code is
// judged against it.
func (s *DBOTPStore) Consume(ctx context.Context, email, code string) error {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" {
		return ErrInvalidEmail
	}
	if code == "" {
		return ErrInvalidCode
	}

	db := s.db.WithContext(ctx)
	for attempt := 0; attempt < 2; attempt++ {
		err := s.consume(db, email, code)
		if !errors.Is(err, errChallengeReplaced) {
			return err
		}
	}
	return ErrOTPNotFound
}

func (s *DBOTPStore) consume(db *gorm.DB, email, code string) error {
	var record models.PendingOTP
	err := db.Take(&record, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOTPNotFound
	}
	if err != nil {
		return fmt.Errorf("otp: load challenge: %w", err)
	}

	if !s.cfg.Clock().Before(record.ExpiresAt) {
		if err := s.discard(db, record); err != nil {
			return err
		}
		return ErrOTPExpired
	}

	if !s.cfg.matches(email, code, record.CodeDigest) {
		return s.recordMismatch(db, record)
	}

	res := db.Where("email = ? AND challenge = ?", email, record.Challenge).Delete(&models.PendingOTP{})
	if res.Error != nil {
		return fmt.Errorf("otp: consume challenge: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Consumed or replaced since it was read.
		return errChallengeReplaced
	}
	return nil
}

func (s *DBOTPStore) recordMismatch(db *gorm.DB, record models.PendingOTP) error {
	res := db.Model(&models.PendingOTP{}).
		Where("email = ? AND challenge = ? AND attempts_remaining > 0", record.Email, record.Challenge).
		UpdateColumn("attempts_remaining", gorm.Expr("attempts_remaining - 1"))
	if res.Error != nil {
		return fmt.Errorf("otp: record attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errChallengeReplaced
	}

	var current models.PendingOTP
	err := db.Select("attempts_remaining").
		Where("email = ? AND challenge = ?", record.Email, record.Challenge).
		Take(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errChallengeReplaced
	}
	if err != nil {
		return fmt.Errorf("otp: reload challenge: %w", err)
	}

	if current.AttemptsRemaining <= 0 {
		if err := s.discard(db, record); err != nil {
			return err
		}
		return ErrOTPAttemptsExhausted
	}
	return ErrOTPMismatch
}

func (s *DBOTPStore) discard(db *gorm.DB, record models.PendingOTP) error {
	err := db.Where("email = ? AND challenge = ?", record.Email, record.Challenge).
		Delete(&models.PendingOTP{}).Error
	if err != nil {
		return fmt.Errorf("otp: discard challenge: %w", err)
	}
	return nil
}

// PurgeExpired removes challenges that expired at or before now.
func (s *DBOTPStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.PendingOTP{})
	return res.RowsAffected, res.Error
}

var _ OTPStore = (*DBOTPStore)(nil)
