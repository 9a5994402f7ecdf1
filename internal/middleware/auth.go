package middleware

import (
	"context"
	stdErrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
	CtxTokenKey     = "sessionToken"
)

// SessionVerifier validates session tokens.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*iauth.SessionClaims, error)
}

// Auth enforces session authentication. The token is read from the Bearer header first and the
// named cookie second.
func Auth(sessions SessionVerifier, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c, cookieName)
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := sessions.Verify(c.Request.Context(), token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			if stdErrors.Is(err, iauth.ErrSessionExpired) {
				response.Error(c, errors.ErrSessionExpired)
			} else {
				// Revoked, forged and malformed tokens all look the same to clients.
				response.Error(c, errors.ErrUnauthorized)
			}
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxSessionIDKey, claims.ID)
		c.Set(CtxTokenKey, token)

		c.Next()
	}
}

// SessionToken extracts the raw session token from the request, or "" when none is present.
func SessionToken(c *gin.Context, cookieName string) string {
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	if cookieName == "" {
		return ""
	}
	if value, err := c.Cookie(cookieName); err == nil {
		return strings.TrimSpace(value)
	}
	return ""
}
