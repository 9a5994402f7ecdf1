package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/api"
	"github.com/charlesng35/authcore/internal/app"
	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/auth/providers"
	"github.com/charlesng35/authcore/internal/cache"
	sharedtestutil "github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/pkg/response"
)

const (
	// SessionCookie is the session cookie name the test router is configured with.
	SessionCookie = "authcore_session"
	// SuccessURL and FailureURL are where OAuth callbacks land in the test router.
	SuccessURL = "https://app.example.com/welcome"
	FailureURL = "/login"
	// OTPRequestLimit is the per-email request budget the test core enforces.
	OTPRequestLimit = 3
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T         *testing.T
	DB        *gorm.DB
	Router    *gin.Engine
	Config    *app.Config
	Core      *iauth.Core
	Sessions  *iauth.SessionIssuer
	Sender    *RecordingSender
	Providers map[string]*FakeProvider
}

// Option adjusts the configuration before the router is built.
type Option func(cfg *app.Config)

// NewEnv provisions a handler test environment. GitHub and Google are enabled, GitLab is not.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Auth: app.AuthConfig{
			Session: app.SessionSettings{
				Secret:     "handler-suite-session-secret-0123456789",
				Issuer:     "authcore-test",
				TTL:        time.Hour,
				CookieName: SessionCookie,
			},
			OAuth: app.OAuthSettings{
				StateTTL:   time.Minute,
				SuccessURL: SuccessURL,
				FailureURL: FailureURL,
			},
		},
		Monitoring: app.MonitoringConfig{
			Health: app.HealthConfig{Enabled: true},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := cache.NewDatabaseStore(db)
	otps, err := iauth.NewDBOTPStore(db, iauth.OTPConfig{DigestKey: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)
	resolver, err := iauth.NewIdentityResolver(db, iauth.ResolverConfig{})
	require.NoError(t, err)
	sessions, err := iauth.NewSessionIssuer(iauth.SessionConfig{
		Secret:   cfg.Auth.Session.Secret,
		Issuer:   cfg.Auth.Session.Issuer,
		TTL:      cfg.Auth.Session.TTL,
		Denylist: store,
	})
	require.NoError(t, err)

	sender := &RecordingSender{}
	dispatcher, err := iauth.NewDispatcher(sender, iauth.DispatcherConfig{})
	require.NoError(t, err)

	fakes := map[string]*FakeProvider{}
	registry := providers.NewRegistry()
	for _, kind := range []string{providers.GitHub, providers.GitLab, providers.Google} {
		fake := &FakeProvider{Kind: kind, Identity: providers.Identity{
			Subject:       kind + "-subject",
			Email:         "oauth@example.com",
			EmailVerified: true,
			DisplayName:   "OAuth User",
		}}
		fakes[kind] = fake
		require.NoError(t, registry.Register(providers.Descriptor{
			Metadata: providers.Metadata{Type: kind, DisplayName: kind},
			Factory: func(providers.ProviderConfig) (providers.Provider, error) {
				return fake, nil
			},
		}))
	}
	catalog, err := providers.NewCatalog(registry, []providers.ProviderConfig{
		{Type: providers.GitHub, Enabled: true},
		{Type: providers.GitLab, Enabled: false},
		{Type: providers.Google, Enabled: true},
	})
	require.NoError(t, err)
	states, err := iauth.NewStateCodec([]byte("fedcba9876543210fedcba9876543210"), cfg.Auth.OAuth.StateTTL, nil)
	require.NoError(t, err)

	core, err := iauth.NewCore(iauth.CoreDeps{
		OTPs:       otps,
		Identities: resolver,
		Sessions:   sessions,
		Delivery:   dispatcher,
		Throttle:   store,
		Catalog:    catalog,
		States:     states,
	}, iauth.CoreOptions{RequestLimit: OTPRequestLimit, RequestWindow: time.Minute})
	require.NoError(t, err)

	router, err := api.NewRouter(api.Deps{
		DB:       db,
		Config:   cfg,
		Core:     core,
		Sessions: sessions,
		Users:    resolver,
		Cache:    store,
	})
	require.NoError(t, err)

	return &Env{
		T:         t,
		DB:        db,
		Router:    router,
		Config:    cfg,
		Core:      core,
		Sessions:  sessions,
		Sender:    sender,
		Providers: fakes,
	}
}

// SentOTP is one message captured by RecordingSender.
type SentOTP struct {
	Email     string
	Code      string
	ExpiresAt time.Time
}

// RecordingSender captures OTP deliveries instead of emailing them.
type RecordingSender struct {
	mu   sync.Mutex
	sent []SentOTP
	// Err, when set, fails every delivery.
	Err error
}

func (s *RecordingSender) SendOTP(_ context.Context, email, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.sent = append(s.sent, SentOTP{Email: email, Code: code, ExpiresAt: expiresAt})
	return nil
}

// Count reports how many codes were delivered.
func (s *RecordingSender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// Last returns the most recent delivery and fails the test when there is none.
func (s *RecordingSender) Last(t *testing.T) SentOTP {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent, "no otp delivered")
	return s.sent[len(s.sent)-1]
}

// FakeProvider is a scripted OAuth provider. Callbacks succeed with Identity unless the provider
// reported an error.
type FakeProvider struct {
	Kind     string
	Identity providers.Identity

	mu     sync.Mutex
	begins []providers.BeginAuthRequest
}

func (p *FakeProvider) Metadata() providers.Metadata {
	return providers.Metadata{Type: p.Kind, DisplayName: p.Kind}
}

func (p *FakeProvider) Begin(_ context.Context, req providers.BeginAuthRequest) (*providers.BeginAuthResponse, error) {
	p.mu.Lock()
	p.begins = append(p.begins, req)
	p.mu.Unlock()
	return &providers.BeginAuthResponse{
		RedirectURL: "https://" + p.Kind + ".example/authorize?state=" + url.QueryEscape(req.State),
		State:       req.State,
	}, nil
}

func (p *FakeProvider) Callback(_ context.Context, req providers.CallbackRequest) (*providers.Identity, error) {
	if req.Error != "" {
		return nil, providers.ErrAuthorizationDenied
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	identity := p.Identity
	identity.Provider = p.Kind
	return &identity, nil
}

// Begins reports how many logins the provider started.
func (p *FakeProvider) Begins() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.begins)
}

// UserPayload captures the user fields returned from auth endpoints.
type UserPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// LoginResult mirrors the JSON body of a successful OTP confirmation.
type LoginResult struct {
	User    UserPayload `json:"user"`
	Session struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	} `json:"session"`
}

// LoginWithOTP runs the email code flow for email and returns the issued session.
func (e *Env) LoginWithOTP(email string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/otp/request", map[string]string{"email": email}, "")
	require.Equal(e.T, http.StatusAccepted, w.Code, w.Body.String())

	code := e.Sender.Last(e.T).Code
	w = e.Request(http.MethodPost, "/api/auth/otp/confirm", map[string]string{"email": email, "code": code}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Session.Token)
	require.NotEmpty(e.T, result.User.ID)
	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and the
// bearer token automatically.
func (e *Env) Request(method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// Cookie returns the named cookie set by the response, or nil.
func Cookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
