package health

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts probes at the root, where load balancers expect
// them, and the JSON metrics under /api/metrics.
func RegisterRoutes(e *echo.Echo, h *Handler, m *MetricsHandler) {
	for _, path := range []string{"/health", "/api/health"} {
		e.GET(path, h.Health)
	}
	e.GET("/healthz", h.Healthz)
	e.GET("/ready", h.Ready)
	e.GET("/debug", h.Debug)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	metrics := e.Group("/api/metrics")
	metrics.GET("/jobs", m.JobMetrics)
	metrics.GET("/scheduler", m.SchedulerMetrics)
}
