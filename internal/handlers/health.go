package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/pkg/response"
)

// HealthHandler exposes liveness and readiness probes.
type HealthHandler struct {
	probes *monitoring.Health
}

func NewHealthHandler(probes *monitoring.Health) *HealthHandler {
	if probes == nil {
		probes = monitoring.NewHealth(0)
	}
	return &HealthHandler{probes: probes}
}

// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	writeReport(c, h.probes.Live(requestContext(c)))
}

// GET /health and /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	writeReport(c, h.probes.Ready(requestContext(c)))
}

func writeReport(c *gin.Context, report monitoring.Report) {
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response.Response{
		Success: report.Healthy(),
		Data:    report,
	})
}
