package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/app"
	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/cache"
	"github.com/charlesng35/authcore/internal/handlers"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/monitoring"
)

// Deps carries the collaborators the HTTP surface needs.
type Deps struct {
	DB       *gorm.DB
	Config   *app.Config
	Core     *iauth.Core
	Sessions *iauth.SessionIssuer
	Users    handlers.UserFinder
	// Cache backs the request rate limiter. Nil disables it.
	Cache cache.Store
	// Health carries the readiness probes. A database-only prober is built when nil.
	Health *monitoring.Health
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Core == nil {
		return nil, fmt.Errorf("auth core must be provided")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session issuer must be provided")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user lookup must be provided")
	}

	cfg := deps.Config
	r := gin.New()
	r.HandleMethodNotAllowed = true

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	if cfg.Server.CSRF.Enabled {
		r.Use(middleware.CSRF(middleware.CSRFOptions{
			CookieName:  cfg.Server.CSRF.CookieName,
			ExemptPaths: cfg.Server.CSRF.ExemptPaths,
			Secure:      cfg.Auth.Session.CookieSecure,
		}))
	}
	if cfg.Server.RateLimit.Requests > 0 {
		r.Use(middleware.RateLimit(deps.Cache, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))
	}

	if cfg.Monitoring.Health.Enabled {
		probes := deps.Health
		if probes == nil {
			probes = monitoring.NewHealth(0)
			probes.AddReadiness("database", monitoring.DatabaseProbe(deps.DB))
		}
		health := handlers.NewHealthHandler(probes)
		r.GET("/health", health.Ready)
		r.GET("/health/live", health.Live)
		r.GET("/health/ready", health.Ready)
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	cookies := handlers.CookieConfig{
		SessionName: cfg.Auth.Session.CookieName,
		Domain:      cfg.Auth.Session.CookieDomain,
		Secure:      cfg.Auth.Session.CookieSecure,
	}

	registerAuthRoutes(r, authRouteDeps{
		OTPHandler: handlers.NewOTPHandler(deps.Core, cookies),
		OAuthHandler: handlers.NewOAuthHandler(deps.Core, handlers.OAuthConfig{
			SuccessURL: cfg.Auth.OAuth.SuccessURL,
			FailureURL: cfg.Auth.OAuth.FailureURL,
			StateTTL:   cfg.Auth.OAuth.StateTTL,
		}, cookies),
		SessionHandler: handlers.NewSessionHandler(deps.Users, deps.Sessions, cookies),
		RequireAuth:    middleware.Auth(deps.Sessions, cookies.SessionName),
	})

	r.NoRoute(middleware.NotFoundHandler)
	r.NoMethod(middleware.MethodNotAllowedHandler)

	return r, nil
}
