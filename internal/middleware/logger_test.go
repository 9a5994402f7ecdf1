package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/authcore/pkg/logger"
)

func observeAccessLog(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(logger.Replace(zap.New(core)))
	return logs
}

func TestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observeAccessLog(t)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(CtxUserIDKey, "user-1")
	})
	r.Use(Logger())
	r.GET("/api/auth/oauth/:provider/callback", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/oauth/github/callback?code=secret&state=abc", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	require.Equal(t, "/api/auth/oauth/:provider/callback", fields["route"])
	require.Equal(t, "user-1", fields["user_id"])
	require.Equal(t, "http", fields["module"])
	require.EqualValues(t, http.StatusOK, fields["status"])
}

func TestLoggerMiddlewareLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observeAccessLog(t)

	r := gin.New()
	r.Use(Logger())
	r.GET("/boom", func(c *gin.Context) {
		c.Status(http.StatusBadGateway)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, unmatchedRoute, entries[1].ContextMap()["route"])
	require.NotContains(t, entries[1].ContextMap(), "user_id")
}
