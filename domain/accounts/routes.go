package accounts

import (
	"github.com/labstack/echo/v4"

	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/pkg/auth"
	"github.com/vaguinhas/vaguinhas/pkg/ratelimit"
)

// RegisterRoutes registers the sign-in routes
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware, limiter *ratelimit.Service, cfg *config.Config) {
	rl := cfg.RateLimit
	loginPolicy := ratelimit.Policy{Limit: rl.LoginLimit, Window: rl.LoginWindow}
	magicPolicy := ratelimit.Policy{Limit: rl.MagicLinkLimit, Window: rl.MagicLinkWindow}

	g := e.Group("/api/auth")
	g.POST("/register", h.Register, limiter.Middleware("register", loginPolicy, ratelimit.ByIP))
	g.POST("/login", h.Login, limiter.Middleware("login", loginPolicy, ratelimit.ByJSONField("email")))
	g.POST("/magic-link", h.RequestMagicLink, limiter.Middleware("magic_link", magicPolicy, ratelimit.ByJSONField("email")))
	g.POST("/magic-link/verify", h.VerifyMagicLink, limiter.Middleware("magic_link_verify", loginPolicy, ratelimit.ByIP))
	g.GET("/oauth/:provider/start", h.OAuthStart)
	g.GET("/oauth/:provider/callback", h.OAuthCallback)
	g.GET("/session", h.Session, authMiddleware.RequireAuth())
	g.POST("/logout", h.Logout)
}
