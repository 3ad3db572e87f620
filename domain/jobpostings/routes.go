package jobpostings

import (
	"github.com/labstack/echo/v4"

	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/pkg/auth"
	"github.com/vaguinhas/vaguinhas/pkg/ratelimit"
)

// RegisterRoutes registers the job postings routes
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware, limiter *ratelimit.Service, cfg *config.Config) {
	policy := ratelimit.Policy{Limit: cfg.RateLimit.JobPostingLimit, Window: cfg.RateLimit.JobPostingWindow}

	g := e.Group("/api/job-postings")
	g.POST("", h.Create, limiter.Middleware("job_posting_create", policy, ratelimit.ByIP))
	g.POST("/logo-upload-url", h.LogoUploadURL, limiter.Middleware("job_posting_logo", policy, ratelimit.ByIP))
	g.GET("", h.List)
	g.GET("/:id", h.Get)

	admin := e.Group("/api/admin/job-postings", authMiddleware.RequireAdmin())
	admin.GET("", h.AdminList)
	admin.PATCH("/:id", h.Review)
	admin.DELETE("/:id", h.Delete)
}
