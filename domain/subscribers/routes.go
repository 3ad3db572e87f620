package subscribers

import (
	"github.com/labstack/echo/v4"

	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/pkg/auth"
	"github.com/vaguinhas/vaguinhas/pkg/ratelimit"
)

// RegisterRoutes registers the newsletter routes
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware, limiter *ratelimit.Service, cfg *config.Config) {
	rl := cfg.RateLimit
	subscribeLimit := limiter.Middleware("subscribe",
		ratelimit.Policy{Limit: rl.SubscribeLimit, Window: rl.SubscribeWindow}, ratelimit.ByIP)
	resendLimit := limiter.Middleware("resend_confirmation",
		ratelimit.Policy{Limit: rl.ResendLimit, Window: rl.ResendWindow}, ratelimit.ByJSONField("email"))

	api := e.Group("/api")
	api.POST("/subscribe", h.Subscribe, subscribeLimit)
	api.GET("/confirm", h.Confirm)
	api.POST("/resend-confirmation", h.ResendConfirmation, resendLimit)
	api.GET("/unsubscribe", h.Unsubscribe)
	api.POST("/unsubscribe", h.Unsubscribe)

	me := api.Group("", authMiddleware.RequireAuth())
	me.GET("/subscribers/me", h.Me)
	me.PUT("/subscribers/me/preferences", h.UpdatePreferences)
	me.POST("/feedback", h.Feedback)
	me.POST("/got-hired", h.GotHired)
}
