package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/auth/providers"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/response"
)

const failureCode = "authentication_failed"

// OAuthService is the provider-redirect half of the authentication core.
type OAuthService interface {
	BeginOAuth(ctx context.Context, provider, returnURL string) (*iauth.OAuthRedirect, error)
	FinishOAuth(ctx context.Context, cb iauth.OAuthCallback) (*iauth.OAuthResult, error)
	EnabledProviders() []providers.Metadata
}

// OAuthConfig holds where the browser lands after a provider login.
type OAuthConfig struct {
	SuccessURL string
	FailureURL string
	StateTTL   time.Duration
}

// OAuthHandler manages provider login redirects and callbacks.
type OAuthHandler struct {
	svc     OAuthService
	cfg     OAuthConfig
	cookies CookieConfig
}

func NewOAuthHandler(svc OAuthService, cfg OAuthConfig, cookies CookieConfig) *OAuthHandler {
	if cfg.SuccessURL == "" {
		cfg.SuccessURL = "/"
	}
	if cfg.FailureURL == "" {
		cfg.FailureURL = "/login"
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = iauth.DefaultStateTTL
	}
	return &OAuthHandler{svc: svc, cfg: cfg, cookies: cookies.withDefaults()}
}

// GET /api/auth/providers
func (h *OAuthHandler) Providers(c *gin.Context) {
	meta := h.svc.EnabledProviders()
	if meta == nil {
		meta = []providers.Metadata{}
	}
	response.Success(c, http.StatusOK, meta)
}

// GET /api/auth/oauth/:provider/login
func (h *OAuthHandler) Login(c *gin.Context) {
	redirect, err := h.svc.BeginOAuth(requestContext(c), c.Param("provider"), c.Query("redirect"))
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	h.cookies.setState(c, redirect.State, h.cfg.StateTTL)
	c.Redirect(http.StatusFound, redirect.URL)
}

// GET /api/auth/oauth/:provider/callback
func (h *OAuthHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")
	state := c.Query("state")
	cookieState, _ := c.Cookie(h.cookies.StateName)
	h.cookies.clearState(c)

	log := logger.WithModule("oauth")
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(cookieState)) != 1 {
		log.Warn("oauth callback state does not match browser", zap.String("provider", provider))
		h.fail(c)
		return
	}

	result, err := h.svc.FinishOAuth(requestContext(c), iauth.OAuthCallback{
		Provider: provider,
		State:    state,
		Code:     c.Query("code"),
		Error:    c.Query("error"),
	})
	if err != nil {
		log.Info("oauth login failed", zap.String("provider", provider), zap.Error(err))
		h.fail(c)
		return
	}

	h.cookies.setSession(c, result.Session)
	c.Redirect(http.StatusSeeOther, joinReturnPath(h.cfg.SuccessURL, result.ReturnURL))
}

func (h *OAuthHandler) fail(c *gin.Context) {
	target, err := url.Parse(h.cfg.FailureURL)
	if err != nil {
		target = &url.URL{Path: "/login"}
	}
	q := target.Query()
	q.Set("error", failureCode)
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusSeeOther, target.String())
}

// joinReturnPath resolves a same-origin return path against the configured success URL.
func joinReturnPath(base, path string) string {
	path = iauth.SafeReturnPath(path)
	if path == "" {
		return base
	}
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Host == "" || strings.HasPrefix(base, "/") {
		return path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return base
	}
	return baseURL.ResolveReference(ref).String()
}
