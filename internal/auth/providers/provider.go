package providers

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrProviderDisabled is returned when a known provider is switched off by configuration.
	ErrProviderDisabled = errors.New("providers: provider not enabled")
	// ErrProviderUnknown is returned for provider names no descriptor is registered for.
	ErrProviderUnknown = errors.New("providers: unknown provider")
	// ErrAuthorizationDenied signals that the provider redirected back with an error parameter.
	ErrAuthorizationDenied = errors.New("providers: authorization denied")
)

// Metadata describes the static presentation details for an authentication provider.
type Metadata struct {
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	Icon        string `json:"icon"`
	ButtonText  string `json:"button_text"`
	Order       int    `json:"order"`
	Flow        string `json:"flow"`
}

// BeginAuthRequest captures contextual information required to begin an external auth flow.
type BeginAuthRequest struct {
	State        string
	Nonce        string
	PKCEVerifier string
	Prompt       string
}

// BeginAuthResponse contains the redirect information required to continue the external auth flow.
type BeginAuthResponse struct {
	RedirectURL string
	State       string
}

// CallbackRequest carries the query parameters returned by the provider together with the
// secrets recovered from the login state.
type CallbackRequest struct {
	Code          string
	Error         string
	PKCEVerifier  string
	ExpectedNonce string
}

// Identity represents the verified claims returned from an external authentication provider.
// Email is empty when the provider did not release a verified address.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
	RawClaims     map[string]any
}

// Provider defines the behaviour required for an interactive external authentication provider.
type Provider interface {
	Metadata() Metadata
	Begin(ctx context.Context, req BeginAuthRequest) (*BeginAuthResponse, error)
	Callback(ctx context.Context, req CallbackRequest) (*Identity, error)
}

// Options are shared by the built-in provider implementations.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	return o
}
