package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/pkg/metrics"
)

// Metrics records request latency per route pattern. Requests that match no route share one
// label value so scanners cannot grow the series count.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.HTTPInFlight.Inc()
		defer metrics.HTTPInFlight.Dec()

		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.APILatency.WithLabelValues(c.Request.Method, routeLabel(c), status).Observe(time.Since(start).Seconds())
	}
}
