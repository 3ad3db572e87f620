package subscribers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vaguinhas/vaguinhas/internal/server"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/auth"
)

// Handler handles HTTP requests for the newsletter flows
type Handler struct {
	svc *Service
}

// NewHandler creates a new subscribers handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Subscribe registers a new subscriber
// POST /api/subscribe
func (h *Handler) Subscribe(c echo.Context) error {
	var req SubscribeRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}

	user, reactivated, err := h.svc.Subscribe(c.Request().Context(), &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, SubscribeResponse{
		Message:     "Check your inbox to confirm your subscription",
		Reactivated: reactivated,
		Subscriber:  ToDTO(user),
	})
}

// Confirm consumes a confirmation token
// GET /api/confirm?token=
func (h *Handler) Confirm(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return apperror.ErrBadRequest.WithMessage("token is required")
	}

	_, already, err := h.svc.Confirm(c.Request().Context(), token)
	if err != nil {
		return err
	}

	msg := "Email confirmed"
	if already {
		msg = "Email already confirmed"
	}
	return c.JSON(http.StatusOK, ConfirmResponse{Message: msg, Confirmed: true, AlreadyConfirmed: already})
}

// ResendConfirmation sends a new confirmation email
// POST /api/resend-confirmation
func (h *Handler) ResendConfirmation(c echo.Context) error {
	var req ResendRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.svc.ResendConfirmation(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Confirmation email sent"})
}

// Unsubscribe opts an address out of the newsletter
// GET /api/unsubscribe?email=&token=
// POST /api/unsubscribe
func (h *Handler) Unsubscribe(c echo.Context) error {
	var req UnsubscribeRequest
	if c.Request().Method == http.MethodGet {
		req.Email = c.QueryParam("email")
		req.Token = c.QueryParam("token")
		if err := c.Validate(&req); err != nil {
			return err
		}
	} else if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.svc.Unsubscribe(c.Request().Context(), req.Email, req.Token); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "You have been unsubscribed"})
}

// Me returns the current subscriber
// GET /api/subscribers/me
func (h *Handler) Me(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	u, err := h.svc.Get(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ToDTO(u))
}

// UpdatePreferences changes seniority and stacks
// PUT /api/subscribers/me/preferences
func (h *Handler) UpdatePreferences(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	var req PreferencesRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}

	u, err := h.svc.UpdatePreferences(c.Request().Context(), user.ID, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ToDTO(u))
}

// Feedback stores a feedback message
// POST /api/feedback
func (h *Handler) Feedback(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	var req FeedbackRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}

	fb, err := h.svc.AddFeedback(c.Request().Context(), user.ID, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, fb)
}

// GotHired stores a "got hired" story
// POST /api/got-hired
func (h *Handler) GotHired(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	var req GotHiredRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}

	msg, err := h.svc.GotHired(c.Request().Context(), user.ID, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, msg)
}
