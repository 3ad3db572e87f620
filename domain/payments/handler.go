package payments

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vaguinhas/vaguinhas/internal/server"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/auth"
)

const maxWebhookBody = 64 << 10

// Handler handles HTTP requests for payments
type Handler struct {
	svc *Service
}

// NewHandler creates a new payments handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Checkout opens a provider checkout for the session user
// POST /api/payments/checkout
func (h *Handler) Checkout(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	var req CheckoutRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.svc.Checkout(c.Request().Context(), user.ID, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// Get returns one of the session user's payments
// GET /api/payments/:id
func (h *Handler) Get(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	p, err := h.svc.Get(c.Request().Context(), user.ID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ToDTO(p))
}

// StripeWebhook consumes a signed Stripe event
// POST /api/payments/webhooks/stripe
func (h *Handler) StripeWebhook(c echo.Context) error {
	payload, err := readBody(c)
	if err != nil {
		return err
	}
	sig := c.Request().Header.Get("Stripe-Signature")
	if err := h.svc.HandleStripeWebhook(c.Request().Context(), payload, sig); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}

// AbacatePayWebhook consumes an AbacatePay event
// POST /api/payments/webhooks/abacatepay?webhookSecret=
func (h *Handler) AbacatePayWebhook(c echo.Context) error {
	payload, err := readBody(c)
	if err != nil {
		return err
	}
	if err := h.svc.HandleAbacatePayWebhook(c.Request().Context(), c.QueryParam("webhookSecret"), payload); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}

func readBody(c echo.Context) ([]byte, error) {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return nil, ErrBadWebhookPayload.WithInternal(err)
	}
	return payload, nil
}
