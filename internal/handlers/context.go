package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/middleware"
)

// requestContext returns the request context, or Background when the handler runs without a request.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// sessionUserID reports the user the auth middleware resolved for this request.
func sessionUserID(c *gin.Context) (string, bool) {
	if c == nil {
		return "", false
	}
	id := c.GetString(middleware.CtxUserIDKey)
	return id, id != ""
}
