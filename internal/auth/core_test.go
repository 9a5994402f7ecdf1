package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/auth/providers"
	"github.com/charlesng35/authcore/internal/cache"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/logger"
)

type fakeProvider struct {
	kind     string
	identity *providers.Identity
	begins   []providers.BeginAuthRequest
	calls    []providers.CallbackRequest
}

func (p *fakeProvider) Metadata() providers.Metadata {
	return providers.Metadata{Type: p.kind, DisplayName: p.kind}
}

func (p *fakeProvider) Begin(_ context.Context, req providers.BeginAuthRequest) (*providers.BeginAuthResponse, error) {
	p.begins = append(p.begins, req)
	return &providers.BeginAuthResponse{
		RedirectURL: "https://" + p.kind + ".example/authorize?state=" + url.QueryEscape(req.State),
		State:       req.State,
	}, nil
}

func (p *fakeProvider) Callback(_ context.Context, req providers.CallbackRequest) (*providers.Identity, error) {
	p.calls = append(p.calls, req)
	if req.Error != "" {
		return nil, providers.ErrAuthorizationDenied
	}
	identity := *p.identity
	return &identity, nil
}

type coreFixture struct {
	core      *Core
	db        *gorm.DB
	clock     *testClock
	sender    *recordingSender
	issuer    *SessionIssuer
	providers map[string]*fakeProvider
	builds    int32
}

func newCoreFixture(t *testing.T, opts CoreOptions, enabled ...string) *coreFixture {
	t.Helper()

	f := &coreFixture{
		db:        openDB(t),
		clock:     newTestClock(),
		sender:    &recordingSender{},
		providers: map[string]*fakeProvider{},
	}

	otps, err := NewDBOTPStore(f.db, OTPConfig{DigestKey: testDigestKey, Clock: f.clock.Now})
	require.NoError(t, err)
	resolver, err := NewIdentityResolver(f.db, ResolverConfig{Clock: f.clock.Now})
	require.NoError(t, err)
	throttle := cache.NewDatabaseStore(f.db).WithClock(f.clock.Now)
	f.issuer, err = NewSessionIssuer(SessionConfig{Secret: "core-secret", Issuer: "authcore", Clock: f.clock.Now, Denylist: throttle})
	require.NoError(t, err)
	dispatcher, err := NewDispatcher(f.sender, DispatcherConfig{})
	require.NoError(t, err)

	registry := providers.NewRegistry()
	enabledSet := map[string]bool{}
	for _, name := range enabled {
		enabledSet[name] = true
	}
	var configs []providers.ProviderConfig
	for _, name := range []string{providers.GitHub, providers.GitLab, providers.Google} {
		name := name
		fp := &fakeProvider{kind: name}
		f.providers[name] = fp
		require.NoError(t, registry.Register(providers.Descriptor{
			Metadata: providers.Metadata{Type: name, DisplayName: name},
			Factory: func(providers.ProviderConfig) (providers.Provider, error) {
				atomic.AddInt32(&f.builds, 1)
				return fp, nil
			},
		}))
		configs = append(configs, providers.ProviderConfig{Type: name, Enabled: enabledSet[name]})
	}
	catalog, err := providers.NewCatalog(registry, configs)
	require.NoError(t, err)
	states, err := NewStateCodec(testStateKey, time.Minute, f.clock.Now)
	require.NoError(t, err)

	f.core, err = NewCore(CoreDeps{
		OTPs:       otps,
		Identities: resolver,
		Sessions:   f.issuer,
		Delivery:   dispatcher,
		Throttle:   throttle,
		Catalog:    catalog,
		States:     states,
	}, opts)
	require.NoError(t, err)
	return f
}

func TestNewCoreRequiresCollaborators(t *testing.T) {
	_, err := NewCore(CoreDeps{}, CoreOptions{})
	require.Error(t, err)
}

func TestOTPLoginEndToEnd(t *testing.T) {
	f := newCoreFixture(t, CoreOptions{})
	ctx := context.Background()

	require.NoError(t, f.core.RequestOTP(ctx, "a@x.com"))
	sent := f.sender.last(t)
	require.Equal(t, "a@x.com", sent.email)
	require.Len(t, sent.code, 6)

	result, err := f.core.ConfirmOTP(ctx, "a@x.com", sent.code)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", result.User.Email)
	require.NotEmpty(t, result.User.ID)

	claims, err := f.issuer.Verify(ctx, result.Session.Token)
	require.NoError(t, err)
	require.Equal(t, result.User.ID, claims.UserID)

	var users int64
	require.NoError(t, f.db.Model(&models.User{}).Where("email = ?", "a@x.com").Count(&users).Error)
	require.EqualValues(t, 1, users)

	_, err = f.core.ConfirmOTP(ctx, "a@x.com", sent.code)
	require.ErrorIs(t, err, ErrOTPNotFound, "codes are single use")
}

func TestOTPLoginReturnsSameUser(t *testing.T) {
	f := newCoreFixture(t, CoreOptions{})
	ctx := context.Background()

	require.NoError(t, f.core.RequestOTP(ctx, "a@x.com"))
	first, err := f.core.ConfirmOTP(ctx, "a@x.com", f.sender.last(t).code)
	require.NoError(t, err)

	require.NoError(t, f.core.RequestOTP(ctx, "A@X.COM"))
	second, err := f.core.ConfirmOTP(ctx, "a@X.com", f.sender.last(t).code)
	require.NoError(t, err)
	require.Equal(t, first.User.ID, second.User.ID)
}

func TestOTPFailuresPropagateWithoutSession(t *testing.T) {
	f := newCoreFixture(t, CoreOptions{})
	ctx := context.Background()

	_, err := f.core.ConfirmOTP(ctx, "nobody@x.com", "123456")
	require.ErrorIs(t, err, ErrOTPNotFound)

	require.NoError(t, f.core.RequestOTP(ctx, "a@x.com"))
	code := f.sender.last(t).code
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = f.core.ConfirmOTP(ctx, "a@x.com", wrong)
	require.ErrorIs(t, err, ErrOTPMismatch)

	f.clock.Advance(DefaultOTPTTL)
	_, err = f.core.ConfirmOTP(ctx, "a@x.com", code)
	require.ErrorIs(t, err, ErrOTPExpired)

	var users int64
	require.NoError(t, f.db.Model(&models.User{}).Count(&users).Error)
	require.Zero(t, users)
}

func TestRequestOTPValidatesEmail(t *testing.T) {
	f := newCoreFixture(t, CoreOptions{})

	for _, input := range []string{"", "not-an-email", "a@", "@x.com"} {
		require.ErrorIs(t, f.core.RequestOTP(context.Background(), input), ErrInvalidEmail)
	}
	require.Zero(t, f.sender.count())

	_, err := f.core.ConfirmOTP(context.Background(), "bad", "123456")
	require.ErrorIs(t, err, ErrInvalidEmail)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.core.ConfirmOTP(context.Background(), "a@x.com", "  ")
	require.ErrorIs(t, err, ErrInvalidCode)
	require.NotErrorIs(t, err, ErrInvalidEmail)
}

func TestRequestOTPRateLimit(t *testing.T) {
	f := newCoreFixture(t, CoreOptions{RequestLimit: 2, RequestWindow: time.Minute})
	ctx := context.Background()

	require.NoError(t, f.core.RequestOTP(ctx, "a@x.com"))
	require.NoError(t, f.core.RequestOTP(ctx, "a@x.com"))
	require.ErrorIs(t, f.core.RequestOTP(ctx, "A@x.com"), ErrOTPRateLimited)
	require.NoError(t, f.core.RequestOTP(ctx, "b@x.com"), "limit is per email")

	f.clock.Advance(time.Minute)
	require.NoError(t, f.core.RequestOTP(ctx, "a@x.com"))
}

func TestRequestOTPDeliveryFailureKeepsCode(t *testing.T) {
	f := newCoreFixture(t, CoreOptions{})
	f.sender.err = errBoom
	ctx := context.Background()

	err := f.core.RequestOTP(ctx, "a@x.com")
	require.ErrorIs(t, err, ErrOTPDelivery)

	_, err = f.core.ConfirmOTP(ctx, "a@x.com", f.sender.last(t).code)
	require.NoError(t, err)
}

func TestCompleteOAuthEndToEnd(t *testing.T) {
	f := newCoreFixture(t, CoreOptions{})
	ctx := context.Background()

	first, err := f.core.CompleteOAuth(ctx, ExternalIdentity{Email: "b@x.com", Provider: "github", Subject: "gh123", DisplayName: "Bob", AvatarURL: "https://img/bob"})
	require.NoError(t, err)
	require.Equal(t, []string{"github"}, first.User.ProviderNames())

	_, err = f.core.CompleteOAuth(ctx, ExternalIdentity{Email: "b@x.com", Provider: "google", Subject: "go456", DisplayName: "Bob", AvatarURL: "https://img/bob"})
	require.ErrorIs(t, err, ErrProviderConflict)
	var detail *ProviderConflictError
	require.False(t, errors.As(err, &detail), "conflict detail stays internal")

	var users int64
	require.NoError(t, f.db.Model(&models.User{}).Where("email = ?", "b@x.com").Count(&users).Error)
	require.EqualValues(t, 1, users)

	again, err := f.core.CompleteOAuth(ctx, ExternalIdentity{Email: "b@x.com", Provider: "github", Subject: "gh123", DisplayName: "Bobby"})
	require.NoError(t, err)
	require.Equal(t, first.User.ID, again.User.ID)
	require.Equal(t, "Bobby", again.User.DisplayName)
}

func TestCompleteOAuthLogsConflictDetail(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	f := newCoreFixture(t, CoreOptions{})
	ctx := context.Background()

	_, err := f.core.CompleteOAuth(ctx, ExternalIdentity{Email: "bob@x.com", Provider: "gitlab", Subject: "1"})
	require.NoError(t, err)
	_, err = f.core.CompleteOAuth(ctx, ExternalIdentity{Email: "bob@x.com", Provider: "google", Subject: "2"})
	require.ErrorIs(t, err, ErrProviderConflict)

	entries := logs.FilterMessage("oauth login rejected").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "google", fields["provider"])
	require.Equal(t, "b***@x.com", fields["email"])
}

func TestCompleteOAuthMissingEmail(t *testing.T) {
	f := newCoreFixture(t, CoreOptions{})
	_, err := f.core.CompleteOAuth(context.Background(), ExternalIdentity{Provider: "github", Subject: "1"})
	require.ErrorIs(t, err, ErrMissingProviderEmail)
}

func TestBeginOAuthDisabledProvider(t *testing.T) {
	f := newCoreFixture(t, CoreOptions{}, providers.GitHub)
	ctx := context.Background()

	_, err := f.core.BeginOAuth(ctx, providers.GitLab, "/")
	require.ErrorIs(t, err, ErrProviderDisabled)
	_, err = f.core.BeginOAuth(ctx, "bitbucket", "/")
	require.ErrorIs(t, err, ErrProviderUnknown)

	require.Zero(t, atomic.LoadInt32(&f.builds), "no provider is contacted")
	require.Empty(t, f.providers[providers.GitLab].begins)
}

func TestOAuthRoundTrip(t *testing.T) {
	f := newCoreFixture(t, CoreOptions{}, providers.Google)
	ctx := context.Background()
	google := f.providers[providers.Google]
	google.identity = &providers.Identity{Provider: "google", Subject: "go1", Email: "Carol@X.com", EmailVerified: true, DisplayName: "Carol"}

	redirect, err := f.core.BeginOAuth(ctx, "Google", "/settings?tab=profile")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(redirect.URL, "https://google.example/authorize"))
	require.Len(t, google.begins, 1)
	begin := google.begins[0]
	require.Equal(t, redirect.State, begin.State)
	require.NotEmpty(t, begin.Nonce)
	require.NotEmpty(t, begin.PKCEVerifier)

	result, err := f.core.FinishOAuth(ctx, OAuthCallback{Provider: "google", State: redirect.State, Code: "code"})
	require.NoError(t, err)
	require.Equal(t, "carol@x.com", result.User.Email)
	require.Equal(t, "/settings?tab=profile", result.ReturnURL)
	require.NotEmpty(t, result.Session.Token)

	require.Len(t, google.calls, 1)
	require.Equal(t, begin.Nonce, google.calls[0].ExpectedNonce)
	require.Equal(t, begin.PKCEVerifier, google.calls[0].PKCEVerifier)
}

func TestFinishOAuthRejectsBadState(t *testing.T) {
	f := newCoreFixture(t, CoreOptions{}, providers.GitHub, providers.Google)
	ctx := context.Background()
	f.providers[providers.GitHub].identity = &providers.Identity{Subject: "1", Email: "a@x.com"}

	redirect, err := f.core.BeginOAuth(ctx, providers.GitHub, "")
	require.NoError(t, err)

	_, err = f.core.FinishOAuth(ctx, OAuthCallback{Provider: providers.Google, State: redirect.State, Code: "c"})
	require.ErrorIs(t, err, ErrOAuthState, "state is bound to its provider")

	_, err = f.core.FinishOAuth(ctx, OAuthCallback{Provider: providers.GitHub, State: "forged", Code: "c"})
	require.ErrorIs(t, err, ErrOAuthState)

	f.clock.Advance(2 * time.Minute)
	_, err = f.core.FinishOAuth(ctx, OAuthCallback{Provider: providers.GitHub, State: redirect.State, Code: "c"})
	require.ErrorIs(t, err, ErrOAuthState, "state expires")
}

func TestFinishOAuthProviderError(t *testing.T) {
	f := newCoreFixture(t, CoreOptions{}, providers.GitHub)
	ctx := context.Background()

	redirect, err := f.core.BeginOAuth(ctx, providers.GitHub, "")
	require.NoError(t, err)

	_, err = f.core.FinishOAuth(ctx, OAuthCallback{Provider: providers.GitHub, State: redirect.State, Error: "access_denied"})
	require.ErrorIs(t, err, providers.ErrAuthorizationDenied)
}

func TestEnabledProviders(t *testing.T) {
	f := newCoreFixture(t, CoreOptions{}, providers.GitLab)
	meta := f.core.EnabledProviders()
	require.Len(t, meta, 1)
	require.Equal(t, providers.GitLab, meta[0].Type)
}

func TestSafeReturnPath(t *testing.T) {
	cases := map[string]string{
		"":                      "",
		"/":                     "/",
		"/settings?tab=1":       "/settings?tab=1",
		"//evil.example/":       "",
		"https://evil.example/": "",
		"relative":              "",
		"/\\evil.example":       "",
	}
	for input, want := range cases {
		require.Equal(t, want, SafeReturnPath(input), input)
	}
}
