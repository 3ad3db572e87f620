package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

// Module provides the session token issuer and auth middleware.
var Module = fx.Module("auth",
	fx.Provide(
		NewIssuer,
		NewMiddleware,
	),
)

// AuthUser represents an authenticated user
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// ContextKey for storing auth user in context
type contextKey string

const (
	UserContextKey  contextKey = "auth_user"
	AdminContextKey contextKey = "auth_admin"
)

// GetUser retrieves the authenticated user from the Echo context
func GetUser(c echo.Context) *AuthUser {
	if user, ok := c.Get(string(UserContextKey)).(*AuthUser); ok {
		return user
	}
	return nil
}

// IsAdmin reports whether the request passed RequireAdmin.
func IsAdmin(c echo.Context) bool {
	ok, _ := c.Get(string(AdminContextKey)).(bool)
	return ok
}

// Middleware handles authentication for routes
type Middleware struct {
	issuer       *Issuer
	cookieName   string
	secureCookie bool
	adminSecrets []string
	log          *slog.Logger
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(issuer *Issuer, cfg *config.Config, log *slog.Logger) *Middleware {
	return &Middleware{
		issuer:       issuer,
		cookieName:   cfg.Auth.SessionCookie,
		secureCookie: cfg.IsProduction(),
		adminSecrets: cfg.Auth.AdminSecrets(),
		log:          log.With(logger.Scope("auth")),
	}
}

// RequireAuth returns middleware that requires a valid session
func (m *Middleware) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := m.extractToken(c.Request())
			if token == "" {
				return apperror.ErrMissingToken
			}

			user, err := m.authenticate(token)
			if err != nil {
				m.log.Debug("authentication failed", logger.Error(err))
				return apperror.ErrInvalidToken.WithInternal(err)
			}

			c.Set(string(UserContextKey), user)
			return next(c)
		}
	}
}

// OptionalAuth sets the user when a valid session is present and never rejects.
func (m *Middleware) OptionalAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token := m.extractToken(c.Request()); token != "" {
				if user, err := m.authenticate(token); err == nil {
					c.Set(string(UserContextKey), user)
				}
			}
			return next(c)
		}
	}
}

// RequireAdmin returns middleware that accepts only a bearer token equal to
// one of the configured admin secrets (JWT_SECRET or CRON_SECRET).
func (m *Middleware) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request())
			if token == "" {
				return apperror.ErrMissingToken
			}
			if len(m.adminSecrets) == 0 || !SecretMatches(token, m.adminSecrets...) {
				m.log.Warn("admin authentication failed",
					slog.String("path", c.Path()),
					slog.String("ip", c.RealIP()))
				return apperror.ErrForbidden.WithMessage("Admin credentials required")
			}

			c.Set(string(AdminContextKey), true)
			return next(c)
		}
	}
}

func (m *Middleware) authenticate(token string) (*AuthUser, error) {
	claims, err := m.issuer.Parse(token)
	if err != nil {
		return nil, err
	}
	return &AuthUser{ID: claims.Subject, Email: claims.Email}, nil
}

// extractToken returns the bearer token, falling back to the session cookie.
func (m *Middleware) extractToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if m.cookieName != "" {
		if cookie, err := r.Cookie(m.cookieName); err == nil {
			return cookie.Value
		}
	}
	return ""
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// SetSessionCookie stores the session token in an HttpOnly cookie.
func (m *Middleware) SetSessionCookie(c echo.Context, token string, expiresAt time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func (m *Middleware) ClearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// Issuer exposes the token issuer for handlers that create sessions.
func (m *Middleware) Issuer() *Issuer {
	return m.issuer
}
