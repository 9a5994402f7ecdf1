package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const defaultGitHubAPIURL = "https://api.github.com"

// NewGitHubDescriptor registers the GitHub OAuth app provider. GitHub does not issue ID tokens, so
// the identity is read from the REST API after the code exchange.
func NewGitHubDescriptor(opts Options) Descriptor {
	opts = opts.withDefaults()
	return Descriptor{
		Metadata: Metadata{
			Type:        GitHub,
			DisplayName: "GitHub",
			Icon:        "github",
			ButtonText:  "Continue with GitHub",
			Order:       10,
			Flow:        "redirect",
		},
		Factory: func(cfg ProviderConfig) (Provider, error) {
			return newGitHubProvider(cfg, opts)
		},
	}
}

type githubProvider struct {
	metadata    Metadata
	oauthConfig *oauth2.Config
	apiURL      string
	opts        Options
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func newGitHubProvider(cfg ProviderConfig, opts Options) (*githubProvider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("github provider: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("github provider: client secret is required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, errors.New("github provider: redirect url is required")
	}

	endpoint := github.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}

	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		apiURL = defaultGitHubAPIURL
	}

	return &githubProvider{
		metadata: normaliseMetadata(Metadata{
			Type:        GitHub,
			DisplayName: "GitHub",
			Icon:        "github",
			ButtonText:  "Continue with GitHub",
			Order:       10,
		}),
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		apiURL: apiURL,
		opts:   opts.withDefaults(),
	}, nil
}

func (p *githubProvider) Metadata() Metadata {
	return p.metadata
}

func (p *githubProvider) Begin(_ context.Context, req BeginAuthRequest) (*BeginAuthResponse, error) {
	if strings.TrimSpace(req.State) == "" {
		return nil, errors.New("github provider: state is required")
	}

	var authOpts []oauth2.AuthCodeOption
	if req.PKCEVerifier != "" {
		authOpts = append(authOpts, oauth2.S256ChallengeOption(req.PKCEVerifier))
	}

	return &BeginAuthResponse{
		RedirectURL: p.oauthConfig.AuthCodeURL(req.State, authOpts...),
		State:       req.State,
	}, nil
}

func (p *githubProvider) Callback(ctx context.Context, req CallbackRequest) (*Identity, error) {
	if req.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrAuthorizationDenied, req.Error)
	}
	if req.Code == "" {
		return nil, errors.New("github provider: authorization code missing")
	}

	ctx, cancel := context.WithTimeout(clientContext(ctx, p.opts), p.opts.Timeout)
	defer cancel()

	var exchangeOpts []oauth2.AuthCodeOption
	if req.PKCEVerifier != "" {
		exchangeOpts = append(exchangeOpts, oauth2.VerifierOption(req.PKCEVerifier))
	}
	token, err := p.oauthConfig.Exchange(ctx, req.Code, exchangeOpts...)
	if err != nil {
		return nil, fmt.Errorf("github provider: exchange failed: %w", err)
	}

	client := p.oauthConfig.Client(ctx, token)

	var user githubUser
	if err := p.getJSON(ctx, client, "/user", &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, errors.New("github provider: user id missing")
	}

	// Tokens without the user:email scope, and some GitHub Enterprise setups, are refused the
	// emails endpoint. That leaves the identity without an email rather than failing the login.
	var emails []githubEmail
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		var statusErr *githubStatusError
		if !errors.As(err, &statusErr) || (statusErr.status != http.StatusForbidden && statusErr.status != http.StatusNotFound) {
			return nil, err
		}
		emails = nil
	}

	displayName := strings.TrimSpace(user.Name)
	if displayName == "" {
		displayName = user.Login
	}

	email := verifiedEmail(emails)
	return &Identity{
		Provider:      GitHub,
		Subject:       strconv.FormatInt(user.ID, 10),
		Email:         email,
		EmailVerified: email != "",
		DisplayName:   displayName,
		AvatarURL:     user.AvatarURL,
		RawClaims: map[string]any{
			"id":         user.ID,
			"login":      user.Login,
			"name":       user.Name,
			"avatar_url": user.AvatarURL,
		},
	}, nil
}

func (p *githubProvider) getJSON(ctx context.Context, client *http.Client, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("github provider: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github provider: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &githubStatusError{path: path, status: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(dst); err != nil {
		return fmt.Errorf("github provider: decode %s: %w", path, err)
	}
	return nil
}

type githubStatusError struct {
	path   string
	status int
}

func (e *githubStatusError) Error() string {
	return fmt.Sprintf("github provider: %s returned status %d", e.path, e.status)
}

// verifiedEmail prefers the primary address and falls back to any verified one.
func verifiedEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return strings.TrimSpace(e.Email)
		}
	}
	for _, e := range emails {
		if e.Verified {
			return strings.TrimSpace(e.Email)
		}
	}
	return ""
}

var _ Provider = (*githubProvider)(nil)
