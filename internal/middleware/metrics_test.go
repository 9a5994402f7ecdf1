package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func latencyPaths(t *testing.T) map[string]uint64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	paths := map[string]uint64{}
	for _, family := range families {
		if family.GetName() != "authcore_api_latency_seconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" {
					paths[label.GetValue()] += metric.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	return paths
}

func inFlightRequests(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == "authcore_http_requests_in_flight" {
			return family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("in-flight gauge not registered")
	return 0
}

func TestMetricsLabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var inFlight float64
	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/auth/oauth/:provider/login", func(c *gin.Context) {
		inFlight = inFlightRequests(t)
		c.Status(http.StatusFound)
	})

	before := latencyPaths(t)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/auth/oauth/github/login", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/auth/oauth/gitlab/login", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/a", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/b", nil))
	after := latencyPaths(t)

	require.Equal(t, before["/api/auth/oauth/:provider/login"]+2, after["/api/auth/oauth/:provider/login"])
	require.Equal(t, before[unmatchedRoute]+2, after[unmatchedRoute])
	require.NotContains(t, after, "/random/a")
	require.NotContains(t, after, "/api/auth/oauth/github/login")

	require.GreaterOrEqual(t, inFlight, float64(1))
	require.Zero(t, inFlightRequests(t))
}
