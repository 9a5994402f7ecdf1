package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/middleware"
)

func TestRequestContext(t *testing.T) {
	require.Equal(t, context.Background(), requestContext(nil))

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	require.Equal(t, context.Background(), requestContext(c))

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	require.Equal(t, "v", requestContext(c).Value(key{}))
}

func TestSessionUserID(t *testing.T) {
	_, ok := sessionUserID(nil)
	require.False(t, ok)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok = sessionUserID(c)
	require.False(t, ok)

	c.Set(middleware.CtxUserIDKey, "user-1")
	id, ok := sessionUserID(c)
	require.True(t, ok)
	require.Equal(t, "user-1", id)
}
