package payments

import (
	"github.com/labstack/echo/v4"

	"github.com/vaguinhas/vaguinhas/pkg/auth"
)

// RegisterRoutes registers the payments routes
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/payments")
	g.POST("/webhooks/stripe", h.StripeWebhook)
	g.POST("/webhooks/abacatepay", h.AbacatePayWebhook)

	session := g.Group("", authMiddleware.RequireAuth())
	session.POST("/checkout", h.Checkout)
	session.GET("/:id", h.Get)
}
