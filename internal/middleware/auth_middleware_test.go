package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/cache"
	"github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/pkg/response"
)

const testCookie = "authcore_session"

func newTestIssuer(t *testing.T, now func() time.Time) *iauth.SessionIssuer {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	issuer, err := iauth.NewSessionIssuer(iauth.SessionConfig{
		Secret:   "secret",
		Issuer:   "test-suite",
		TTL:      time.Minute,
		Clock:    now,
		Denylist: cache.NewDatabaseStore(db),
	})
	require.NoError(t, err)
	return issuer
}

func secureRouter(issuer *iauth.SessionIssuer) *gin.Engine {
	r := gin.New()
	r.GET("/secure", Auth(issuer, testCookie), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":    c.GetString(CtxUserIDKey),
			"session_id": c.GetString(CtxSessionIDKey),
		})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	issuer := newTestIssuer(t, time.Now)
	session, err := issuer.Issue("user-123")
	require.NoError(t, err)
	r := secureRouter(issuer)

	// Missing credentials -> 401
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	// Bearer token
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "user-123", payload["user_id"])
	require.Equal(t, session.ID, payload["session_id"])

	// Cookie
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: session.Token})
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Tampered token
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token+"x")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareRejectsRevokedSession(t *testing.T) {
	gin.SetMode(gin.TestMode)

	issuer := newTestIssuer(t, time.Now)
	session, err := issuer.Issue("user-123")
	require.NoError(t, err)
	require.NoError(t, issuer.Revoke(context.Background(), session.Token))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	secureRouter(issuer).ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareReportsExpiry(t *testing.T) {
	gin.SetMode(gin.TestMode)

	now := time.Now()
	issuer := newTestIssuer(t, func() time.Time { return now })
	session, err := issuer.Issue("user-123")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	secureRouter(issuer).ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "auth.session_expired", payload.Error.Code)
}
