package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/pkg/crypto"
	"github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/response"
)

const (
	// DefaultCSRFCookieName is the cookie used to transport the CSRF token when none is configured.
	DefaultCSRFCookieName = "authcore_csrf"
	// CSRFHeaderName is the header clients must present for unsafe HTTP methods.
	CSRFHeaderName = "X-CSRF-Token"

	csrfTokenLength  = 48
	csrfCookieMaxAge = 12 * 60 * 60 // 12 hours
	csrfLoggerModule = "csrf"
)

var unsafeMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// CSRFOptions configures the double-submit check.
type CSRFOptions struct {
	CookieName string
	// ExemptPaths are route patterns (as registered, e.g. /api/auth/otp/request) that skip the check.
	ExemptPaths []string
	// Secure forces the Secure attribute; otherwise it follows the request scheme.
	Secure bool
}

// CSRF implements the double-submit-cookie pattern for cookie-authenticated browsers. Safe methods
// receive a token via cookie and header, and mutating requests must echo it in X-CSRF-Token.
// Requests authenticated with a bearer token carry no ambient credentials and are not checked.
func CSRF(opts CSRFOptions) gin.HandlerFunc {
	if strings.TrimSpace(opts.CookieName) == "" {
		opts.CookieName = DefaultCSRFCookieName
	}
	exempt := make(map[string]struct{}, len(opts.ExemptPaths))
	for _, path := range opts.ExemptPaths {
		if path = strings.TrimSpace(path); path != "" {
			exempt[path] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodOptions {
			c.Next()
			return
		}

		if isUnsafeMethod(method) {
			if _, ok := exempt[c.FullPath()]; ok || hasBearerToken(c) {
				c.Next()
				return
			}
		}

		token, issued, err := ensureCSRFCookie(c, opts)
		if err != nil {
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
			return
		}

		if isUnsafeMethod(method) {
			headerToken := strings.TrimSpace(c.GetHeader(CSRFHeaderName))
			if headerToken == "" || !constantTimeEqual(token, headerToken) {
				logger.WithModule(csrfLoggerModule).Warn("csrf validation failed",
					zap.String("method", method),
					zap.String("path", c.FullPath()),
					zap.Bool("cookie_issued", issued),
				)
				response.Error(c, errors.ErrCSRFInvalid)
				c.Abort()
				return
			}
		} else {
			c.Header(CSRFHeaderName, token)
		}

		c.Next()
	}
}

func ensureCSRFCookie(c *gin.Context, opts CSRFOptions) (token string, issued bool, err error) {
	if existing, err := c.Cookie(opts.CookieName); err == nil && len(existing) > 0 {
		setCSRFCookie(c, opts, existing)
		return existing, false, nil
	}

	token, err = crypto.GenerateToken(csrfTokenLength)
	if err != nil {
		return "", false, err
	}
	setCSRFCookie(c, opts, token)
	return token, true, nil
}

func setCSRFCookie(c *gin.Context, opts CSRFOptions, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     opts.CookieName,
		Value:    token,
		Path:     "/",
		Secure:   opts.Secure || isSecureRequest(c.Request),
		HttpOnly: false,
		MaxAge:   csrfCookieMaxAge,
		SameSite: http.SameSiteStrictMode,
	})
}

func hasBearerToken(c *gin.Context) bool {
	scheme, token, ok := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
	return ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) != ""
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func isUnsafeMethod(method string) bool {
	_, ok := unsafeMethods[method]
	return ok
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
