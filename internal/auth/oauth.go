package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/charlesng35/authcore/internal/auth/providers"
	"github.com/charlesng35/authcore/pkg/crypto"
	"github.com/charlesng35/authcore/pkg/metrics"
)

// OAuthRedirect is where the browser is sent to start a provider login, and the state bound to it.
type OAuthRedirect struct {
	URL   string
	State string
}

// OAuthCallback carries the provider's redirect parameters.
type OAuthCallback struct {
	Provider string
	State    string
	Code     string
	Error    string
}

// OAuthResult is a completed OAuth login plus the return path captured when it started.
type OAuthResult struct {
	Result
	ReturnURL string
}

// BeginOAuth starts a provider login. Disabled and unknown providers fail before any provider
// call is made.
func (c *Core) BeginOAuth(ctx context.Context, provider, returnURL string) (*OAuthRedirect, error) {
	if c.catalog == nil || c.states == nil {
		return nil, errors.New("auth core: oauth is not configured")
	}
	provider = providers.NormaliseType(provider)
	if err := c.catalog.Check(provider); err != nil {
		return nil, err
	}

	p, err := c.catalog.Lookup(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("auth core: load provider: %w", err)
	}

	nonce, err := crypto.GenerateToken(24)
	if err != nil {
		return nil, fmt.Errorf("auth core: generate nonce: %w", err)
	}

	verifier := oauth2.GenerateVerifier()
	state, err := c.states.Encode(StatePayload{
		Provider:  provider,
		ReturnURL: SafeReturnPath(returnURL),
		Nonce:     nonce,
		PKCE:      verifier,
	})
	if err != nil {
		return nil, err
	}

	resp, err := p.Begin(ctx, providers.BeginAuthRequest{
		State:        state,
		Nonce:        nonce,
		PKCEVerifier: verifier,
	})
	if err != nil {
		return nil, fmt.Errorf("auth core: begin %s login: %w", provider, err)
	}

	metrics.OAuthLogins.WithLabelValues(provider, "started").Inc()
	return &OAuthRedirect{URL: resp.RedirectURL, State: state}, nil
}

// FinishOAuth validates the callback state, lets the provider verify the callback, and completes
// the login with the resulting identity.
func (c *Core) FinishOAuth(ctx context.Context, cb OAuthCallback) (*OAuthResult, error) {
	if c.catalog == nil || c.states == nil {
		return nil, errors.New("auth core: oauth is not configured")
	}
	provider := providers.NormaliseType(cb.Provider)

	payload, err := c.states.Decode(cb.State)
	if err != nil {
		metrics.OAuthLogins.WithLabelValues(provider, "invalid_state").Inc()
		return nil, err
	}
	if payload.Provider != provider {
		metrics.OAuthLogins.WithLabelValues(provider, "invalid_state").Inc()
		return nil, fmt.Errorf("%w: issued for %s", ErrOAuthState, payload.Provider)
	}

	p, err := c.catalog.Lookup(ctx, provider)
	if err != nil {
		return nil, err
	}

	identity, err := p.Callback(ctx, providers.CallbackRequest{
		Code:          cb.Code,
		Error:         cb.Error,
		PKCEVerifier:  payload.PKCE,
		ExpectedNonce: payload.Nonce,
	})
	if err != nil {
		metrics.OAuthLogins.WithLabelValues(provider, "callback_failed").Inc()
		c.log.Warn("oauth callback failed", zap.String("provider", provider), zap.Error(err))
		return nil, fmt.Errorf("auth core: %s callback: %w", provider, err)
	}

	result, err := c.CompleteOAuth(ctx, ExternalIdentity{
		Email:       identity.Email,
		Provider:    provider,
		Subject:     identity.Subject,
		DisplayName: identity.DisplayName,
		AvatarURL:   identity.AvatarURL,
		Claims:      identity.RawClaims,
	})
	if err != nil {
		return nil, err
	}
	return &OAuthResult{Result: *result, ReturnURL: payload.ReturnURL}, nil
}

// EnabledProviders lists the providers a client may offer.
func (c *Core) EnabledProviders() []providers.Metadata {
	if c.catalog == nil {
		return nil
	}
	return c.catalog.EnabledMetadata()
}

// SafeReturnPath accepts only same-origin absolute paths; anything else yields "".
func SafeReturnPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return u.RequestURI()
}
