package campaigns

import (
	"github.com/labstack/echo/v4"

	"github.com/vaguinhas/vaguinhas/pkg/auth"
)

// RegisterRoutes registers the admin campaign, queue and cron routes
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	admin := e.Group("/api/admin", authMiddleware.RequireAdmin())
	admin.POST("/campaigns/broadcast", h.Broadcast)
	admin.POST("/campaigns/support-us", h.SupportUs)
	admin.POST("/campaigns/confirmation-reminders", h.ConfirmationReminders)
	admin.POST("/campaigns/daily-digest", h.DailyDigest)
	admin.GET("/queue/stats", h.QueueStats)
	admin.POST("/queue/retry-dead-letter", h.RetryDeadLetter)
	admin.GET("/queue/jobs/:id", h.GetJob)

	cron := e.Group("/api/cron", authMiddleware.RequireAdmin())
	cron.POST("/daily-digest", h.DailyDigest)
}
