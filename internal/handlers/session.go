package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/response"
)

// UserFinder loads users by id.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// SessionRevoker ends sessions before their natural expiry.
type SessionRevoker interface {
	Revoke(ctx context.Context, token string) error
}

// SessionHandler serves the current session.
type SessionHandler struct {
	users    UserFinder
	sessions SessionRevoker
	cookies  CookieConfig
}

func NewSessionHandler(users UserFinder, sessions SessionRevoker, cookies CookieConfig) *SessionHandler {
	return &SessionHandler{users: users, sessions: sessions, cookies: cookies.withDefaults()}
}

// GET /api/auth/me
func (h *SessionHandler) Me(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.FindByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, authError(err))
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/auth/logout
func (h *SessionHandler) Logout(c *gin.Context) {
	if token := middleware.SessionToken(c, h.cookies.SessionName); token != "" {
		if err := h.sessions.Revoke(requestContext(c), token); err != nil {
			logger.WithModule("auth").Error("session revocation failed", zap.Error(err))
			response.Error(c, errors.ErrInternalServer)
			return
		}
	}

	h.cookies.clearSession(c)
	c.Status(http.StatusNoContent)
}
