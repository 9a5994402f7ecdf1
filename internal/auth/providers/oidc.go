package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Provider type names.
const (
	GitHub = "github"
	GitLab = "gitlab"
	Google = "google"
)

var oidcDefaults = map[string]struct {
	issuer      string
	displayName string
	icon        string
	order       int
}{
	GitLab: {issuer: "https://gitlab.com", displayName: "GitLab", icon: "gitlab", order: 20},
	Google: {issuer: "https://accounts.google.com", displayName: "Google", icon: "google", order: 30},
}

// NewOIDCDescriptor registers an OpenID Connect backed provider. kind selects the defaults for
// GitLab or Google; any other kind must supply its own issuer.
func NewOIDCDescriptor(kind string, opts Options) Descriptor {
	kind = NormaliseType(kind)
	opts = opts.withDefaults()
	defaults := oidcDefaults[kind]

	displayName := defaults.displayName
	if displayName == "" {
		displayName = kind
	}

	return Descriptor{
		Metadata: Metadata{
			Type:        kind,
			DisplayName: displayName,
			Icon:        defaults.icon,
			ButtonText:  "Continue with " + displayName,
			Order:       defaults.order,
			Flow:        "redirect",
		},
		Factory: func(cfg ProviderConfig) (Provider, error) {
			if cfg.Type == "" {
				cfg.Type = kind
			}
			if strings.TrimSpace(cfg.Issuer) == "" {
				cfg.Issuer = defaults.issuer
			}
			return newOIDCProvider(cfg, displayName, opts)
		},
	}
}

type oidcProvider struct {
	kind        string
	metadata    Metadata
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	opts        Options
}

func newOIDCProvider(cfg ProviderConfig, displayName string, opts Options) (*oidcProvider, error) {
	kind := NormaliseType(cfg.Type)
	if kind == "" {
		return nil, errors.New("oidc provider: type is required")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("oidc provider: issuer is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("oidc provider: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("oidc provider: client secret is required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, errors.New("oidc provider: redirect url is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	opts = opts.withDefaults()
	ctx, cancel := context.WithTimeout(clientContext(context.Background(), opts), opts.Timeout)
	defer cancel()

	issuer, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: discovery failed: %w", err)
	}

	return &oidcProvider{
		kind: kind,
		metadata: normaliseMetadata(Metadata{
			Type:        kind,
			DisplayName: displayName,
			ButtonText:  "Continue with " + displayName,
			Flow:        "redirect",
		}),
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     issuer.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		verifier: issuer.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		opts:     opts,
	}, nil
}

func (p *oidcProvider) Metadata() Metadata {
	return p.metadata
}

func (p *oidcProvider) Begin(_ context.Context, req BeginAuthRequest) (*BeginAuthResponse, error) {
	if strings.TrimSpace(req.State) == "" {
		return nil, errors.New("oidc provider: state is required")
	}
	if strings.TrimSpace(req.Nonce) == "" {
		return nil, errors.New("oidc provider: nonce is required")
	}
	if strings.TrimSpace(req.PKCEVerifier) == "" {
		return nil, errors.New("oidc provider: pkce verifier is required")
	}

	authOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(req.Nonce),
		oauth2.S256ChallengeOption(req.PKCEVerifier),
	}
	if req.Prompt != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("prompt", req.Prompt))
	}

	return &BeginAuthResponse{
		RedirectURL: p.oauthConfig.AuthCodeURL(req.State, authOpts...),
		State:       req.State,
	}, nil
}

func (p *oidcProvider) Callback(ctx context.Context, req CallbackRequest) (*Identity, error) {
	if req.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrAuthorizationDenied, req.Error)
	}
	if req.Code == "" {
		return nil, errors.New("oidc provider: authorization code missing")
	}
	if strings.TrimSpace(req.PKCEVerifier) == "" {
		return nil, errors.New("oidc provider: pkce verifier is required")
	}

	tokenCtx, cancel := context.WithTimeout(clientContext(ctx, p.opts), p.opts.Timeout)
	defer cancel()

	token, err := p.oauthConfig.Exchange(tokenCtx, req.Code, oauth2.VerifierOption(req.PKCEVerifier))
	if err != nil {
		return nil, fmt.Errorf("oidc provider: exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("oidc provider: id token missing")
	}

	idToken, err := p.verifier.Verify(tokenCtx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: verify id token: %w", err)
	}
	if req.ExpectedNonce != "" && idToken.Nonce != req.ExpectedNonce {
		return nil, errors.New("oidc provider: nonce mismatch")
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidc provider: decode claims: %w", err)
	}

	identity := &Identity{
		Provider:    p.kind,
		Subject:     idToken.Subject,
		Email:       strings.TrimSpace(stringValue(claims, "email")),
		DisplayName: stringValue(claims, "name"),
		AvatarURL:   stringValue(claims, "picture"),
		RawClaims:   claims,
	}
	if identity.DisplayName == "" {
		identity.DisplayName = stringValue(claims, "nickname")
	}

	// Only a verified address may be used as an identity key.
	if _, present := claims["email_verified"]; present {
		identity.EmailVerified = boolValue(claims, "email_verified")
		if !identity.EmailVerified {
			identity.Email = ""
		}
	} else {
		identity.EmailVerified = identity.Email != ""
	}

	return identity, nil
}

func clientContext(ctx context.Context, opts Options) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, opts.HTTPClient)
	}
	return ctx
}

func stringValue(claims map[string]any, key string) string {
	if v, ok := claims[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func boolValue(claims map[string]any, key string) bool {
	if v, ok := claims[key]; ok {
		switch val := v.(type) {
		case bool:
			return val
		case string:
			return strings.EqualFold(val, "true")
		}
	}
	return false
}

var _ Provider = (*oidcProvider)(nil)
