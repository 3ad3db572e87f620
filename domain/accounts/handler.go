package accounts

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/internal/server"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/auth"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

const (
	stateCookie = "vaguinhas_oauth_state"
	stateTTL    = 10 * time.Minute
)

// Handler handles HTTP requests for sign-in
type Handler struct {
	svc    *Service
	auth   *auth.Middleware
	app    config.AppConfig
	secure bool
	log    *slog.Logger
}

// NewHandler creates a new accounts handler
func NewHandler(svc *Service, authMiddleware *auth.Middleware, cfg *config.Config, log *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		auth:   authMiddleware,
		app:    cfg.App,
		secure: cfg.IsProduction(),
		log:    log.With(logger.Scope("accounts.handler")),
	}
}

// Register creates a password account
// POST /api/auth/register
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.svc.Register(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"message": "Account created. Check your inbox to confirm your email",
		"user":    ToUserDTO(user, time.Now()),
	})
}

// Login signs in with email and password
// POST /api/auth/login
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}

	sess, err := h.svc.Login(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	h.auth.SetSessionCookie(c, sess.Token, sess.ExpiresAt)
	return c.JSON(http.StatusOK, sess)
}

// RequestMagicLink emails a sign-in link. The response never reveals
// whether the address has an account.
// POST /api/auth/magic-link
func (h *Handler) RequestMagicLink(c echo.Context) error {
	var req MagicLinkRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.svc.RequestMagicLink(c.Request().Context(), req.Email); err != nil {
		h.log.Error("magic link request failed", logger.Error(err))
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "If the address has an account, a sign-in link is on its way",
	})
}

// VerifyMagicLink consumes a link and signs in
// POST /api/auth/magic-link/verify
func (h *Handler) VerifyMagicLink(c echo.Context) error {
	var req VerifyMagicLinkRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}

	sess, err := h.svc.VerifyMagicLink(c.Request().Context(), req.Token)
	if err != nil {
		return err
	}
	h.auth.SetSessionCookie(c, sess.Token, sess.ExpiresAt)
	return c.JSON(http.StatusOK, sess)
}

// OAuthStart redirects to the provider
// GET /api/auth/oauth/:provider/start
func (h *Handler) OAuthStart(c echo.Context) error {
	provider := c.Param("provider")
	if !h.svc.HasProvider(provider) {
		return ErrUnknownProvider
	}

	state := uuid.NewString()
	target, err := h.svc.OAuthURL(c.Request().Context(), provider, state)
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     stateCookie,
		Value:    provider + "." + state,
		Path:     "/api/auth/oauth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, target)
}

// OAuthCallback finishes the provider flow and redirects to the frontend
// GET /api/auth/oauth/:provider/callback
func (h *Handler) OAuthCallback(c echo.Context) error {
	provider := c.Param("provider")
	if !h.svc.HasProvider(provider) {
		return ErrUnknownProvider
	}

	expected := ""
	if ck, err := c.Cookie(stateCookie); err == nil {
		expected = ck.Value
	}
	h.clearState(c)

	got := provider + "." + c.QueryParam("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return apperror.ErrBadRequest.WithMessage("Invalid OAuth state")
	}
	if e := c.QueryParam("error"); e != "" {
		h.log.Info("oauth sign-in denied", slog.String("provider", provider), slog.String("error", e))
		return c.Redirect(http.StatusFound, h.app.URL("/login?error="+provider))
	}
	code := c.QueryParam("code")
	if code == "" {
		return apperror.ErrBadRequest.WithMessage("code is required")
	}

	sess, err := h.svc.OAuthCallback(c.Request().Context(), provider, code)
	if err != nil {
		if appErr, ok := apperror.As(err); ok && appErr.HTTPStatus < http.StatusInternalServerError {
			return c.Redirect(http.StatusFound, h.app.URL("/login?error="+appErr.Code))
		}
		return err
	}
	h.auth.SetSessionCookie(c, sess.Token, sess.ExpiresAt)
	return c.Redirect(http.StatusFound, h.app.URL("/"))
}

// Session returns the signed-in user
// GET /api/auth/session
func (h *Handler) Session(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	dto, err := h.svc.CurrentUser(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"user": dto})
}

// Logout clears the session cookie
// POST /api/auth/logout
func (h *Handler) Logout(c echo.Context) error {
	h.auth.ClearSessionCookie(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) clearState(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/api/auth/oauth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
