package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/authcore/internal/auth"
)

const (
	DefaultSessionCookie = "authcore_session"
	DefaultStateCookie   = "authcore_oauth_state"

	stateCookiePath = "/api/auth/oauth"
)

// CookieConfig controls how session and OAuth state cookies are written.
type CookieConfig struct {
	SessionName string
	StateName   string
	Domain      string
	Secure      bool
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.SessionName == "" {
		c.SessionName = DefaultSessionCookie
	}
	if c.StateName == "" {
		c.StateName = DefaultStateCookie
	}
	return c
}

func (c CookieConfig) setSession(ctx *gin.Context, session iauth.Session) {
	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     c.SessionName,
		Value:    session.Token,
		Path:     "/",
		Domain:   c.Domain,
		Expires:  session.ExpiresAt,
		MaxAge:   maxAge(session.ExpiresAt.Sub(session.IssuedAt)),
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) clearSession(ctx *gin.Context) {
	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     c.SessionName,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   -1,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// The state cookie must survive the cross-site redirect back from the provider, hence Lax.
func (c CookieConfig) setState(ctx *gin.Context, state string, ttl time.Duration) {
	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     c.StateName,
		Value:    state,
		Path:     stateCookiePath,
		Domain:   c.Domain,
		MaxAge:   maxAge(ttl),
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) clearState(ctx *gin.Context) {
	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     c.StateName,
		Value:    "",
		Path:     stateCookiePath,
		Domain:   c.Domain,
		MaxAge:   -1,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func maxAge(d time.Duration) int {
	secs := int(d.Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}
