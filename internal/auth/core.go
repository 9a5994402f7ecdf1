package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/auth/providers"
	"github.com/charlesng35/authcore/internal/cache"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/metrics"
	"github.com/charlesng35/authcore/pkg/validator"
)

const otpRequestKeyPrefix = "otp:request:"

// SessionMinter issues sessions for resolved users.
type SessionMinter interface {
	Issue(userID string) (Session, error)
}

// OTPDispatcher delivers freshly issued codes.
type OTPDispatcher interface {
	Dispatch(ctx context.Context, email, code string, expiresAt time.Time) error
}

// CoreDeps are the collaborators orchestrated by Core.
type CoreDeps struct {
	OTPs       OTPStore
	Identities IdentityResolver
	Sessions   SessionMinter
	Delivery   OTPDispatcher
	// Throttle backs the per-email OTP request limit. Optional.
	Throttle cache.Store
	// Catalog and States are required for the redirect half of the OAuth flow only.
	Catalog *providers.Catalog
	States  *StateCodec
}

// CoreOptions tune Core behaviour.
type CoreOptions struct {
	// RequestLimit caps OTP requests per email within RequestWindow. Zero disables the limit.
	RequestLimit  int
	RequestWindow time.Duration
}

// Result is the outcome of a successful login through either flow.
type Result struct {
	User    *models.User `json:"user"`
	Session Session      `json:"session"`
}

// Core orchestrates the OTP and OAuth login flows. Flows share no state beyond the collaborators.
type Core struct {
	otps       OTPStore
	identities IdentityResolver
	sessions   SessionMinter
	delivery   OTPDispatcher
	throttle   cache.Store
	catalog    *providers.Catalog
	states     *StateCodec
	opts       CoreOptions
	log        *zap.Logger
}

// NewCore wires the authentication core.
func NewCore(deps CoreDeps, opts CoreOptions) (*Core, error) {
	switch {
	case deps.OTPs == nil:
		return nil, errors.New("auth core: otp store is required")
	case deps.Identities == nil:
		return nil, errors.New("auth core: identity resolver is required")
	case deps.Sessions == nil:
		return nil, errors.New("auth core: session issuer is required")
	case deps.Delivery == nil:
		return nil, errors.New("auth core: otp delivery is required")
	}
	if opts.RequestWindow <= 0 {
		opts.RequestWindow = 15 * time.Minute
	}

	return &Core{
		otps:       deps.OTPs,
		identities: deps.Identities,
		sessions:   deps.Sessions,
		delivery:   deps.Delivery,
		throttle:   deps.Throttle,
		catalog:    deps.Catalog,
		states:     deps.States,
		opts:       opts,
		log:        logger.WithModule("auth"),
	}, nil
}

// RequestOTP issues a code for email and hands it to delivery. Besides malformed input it fails
// only when the email is over its request limit, when the code cannot be stored, or when a
// synchronous delivery fails; in the last case the stored code remains valid.
func (c *Core) RequestOTP(ctx context.Context, email string) error {
	if !validator.IsEmail(strings.TrimSpace(email)) {
		metrics.OTPRequests.WithLabelValues("invalid").Inc()
		return ErrInvalidEmail
	}
	email = NormalizeEmail(email)

	if err := c.checkRequestLimit(ctx, email); err != nil {
		metrics.OTPRequests.WithLabelValues("rate_limited").Inc()
		return err
	}

	challenge, err := c.otps.Create(ctx, email)
	if err != nil {
		metrics.OTPRequests.WithLabelValues("error").Inc()
		return fmt.Errorf("auth core: create otp: %w", err)
	}

	if err := c.delivery.Dispatch(ctx, challenge.Email, challenge.Code, challenge.ExpiresAt); err != nil {
		metrics.OTPRequests.WithLabelValues("delivery_failed").Inc()
		c.log.Warn("otp delivery failed", zap.String("email", logger.MaskEmail(email)), zap.Error(err))
		return err
	}

	metrics.OTPRequests.WithLabelValues("issued").Inc()
	return nil
}

// ConfirmOTP consumes the code and, on success, resolves the user and issues a session.
func (c *Core) ConfirmOTP(ctx context.Context, email, code string) (*Result, error) {
	if !validator.IsEmail(strings.TrimSpace(email)) {
		metrics.OTPConfirmations.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidEmail
	}
	if strings.TrimSpace(code) == "" {
		metrics.OTPConfirmations.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCode
	}
	email = NormalizeEmail(email)

	if err := c.otps.Consume(ctx, email, code); err != nil {
		metrics.OTPConfirmations.WithLabelValues(otpResultLabel(err)).Inc()
		return nil, err
	}

	user, err := c.identities.ResolveByEmail(ctx, email)
	if err != nil {
		metrics.OTPConfirmations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("auth core: resolve user: %w", err)
	}

	session, err := c.issue(user)
	if err != nil {
		metrics.OTPConfirmations.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.OTPConfirmations.WithLabelValues("success").Inc()
	c.log.Info("otp login", zap.String("user_id", user.ID))
	return &Result{User: user, Session: session}, nil
}

// CompleteOAuth resolves a provider-verified identity and issues a session. A ProviderConflict is
// logged in detail here and returned as the bare ErrProviderConflict.
func (c *Core) CompleteOAuth(ctx context.Context, identity ExternalIdentity) (*Result, error) {
	provider := providers.NormaliseType(identity.Provider)
	if strings.TrimSpace(identity.Email) == "" {
		metrics.OAuthLogins.WithLabelValues(provider, "missing_email").Inc()
		return nil, ErrMissingProviderEmail
	}

	user, err := c.identities.ResolveOrLink(ctx, identity)
	if err != nil {
		var conflict *ProviderConflictError
		if errors.As(err, &conflict) {
			metrics.OAuthLogins.WithLabelValues(provider, "conflict").Inc()
			c.log.Warn("oauth login rejected",
				zap.String("provider", conflict.Provider),
				zap.Strings("linked_providers", conflict.Existing),
				zap.String("email", logger.MaskEmail(conflict.Email)),
			)
			return nil, ErrProviderConflict
		}
		metrics.OAuthLogins.WithLabelValues(provider, "error").Inc()
		if errors.Is(err, ErrMissingProviderEmail) || errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("auth core: resolve identity: %w", err)
	}

	session, err := c.issue(user)
	if err != nil {
		metrics.OAuthLogins.WithLabelValues(provider, "error").Inc()
		return nil, err
	}

	metrics.OAuthLogins.WithLabelValues(provider, "success").Inc()
	c.log.Info("oauth login", zap.String("provider", provider), zap.String("user_id", user.ID))
	return &Result{User: user, Session: session}, nil
}

func (c *Core) issue(user *models.User) (Session, error) {
	session, err := c.sessions.Issue(user.ID)
	if err != nil {
		c.log.Error("session issuance failed", zap.String("user_id", user.ID), zap.Error(err))
		if errors.Is(err, ErrSessionIssuance) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("%w: %v", ErrSessionIssuance, err)
	}
	metrics.SessionsIssued.Inc()
	return session, nil
}

func (c *Core) checkRequestLimit(ctx context.Context, email string) error {
	if c.throttle == nil || c.opts.RequestLimit <= 0 {
		return nil
	}
	count, _, err := c.throttle.IncrementWithTTL(ctx, otpRequestKeyPrefix+email, c.opts.RequestWindow)
	if err != nil {
		// The limit protects the mail relay; an unavailable counter must not block sign-in.
		c.log.Warn("otp request throttle unavailable", zap.Error(err))
		return nil
	}
	if count > int64(c.opts.RequestLimit) {
		return ErrOTPRateLimited
	}
	return nil
}

func otpResultLabel(err error) string {
	switch {
	case errors.Is(err, ErrOTPNotFound):
		return "not_found"
	case errors.Is(err, ErrOTPExpired):
		return "expired"
	case errors.Is(err, ErrOTPMismatch):
		return "mismatch"
	case errors.Is(err, ErrOTPAttemptsExhausted):
		return "exhausted"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
