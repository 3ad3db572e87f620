package campaigns

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vaguinhas/vaguinhas/internal/server"
)

// Handler handles the admin campaign and queue endpoints
type Handler struct {
	svc *Service
}

// NewHandler creates a new campaigns handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Broadcast enqueues a broadcast to every subscriber
// POST /api/admin/campaigns/broadcast
func (h *Handler) Broadcast(c echo.Context) error {
	var req BroadcastRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}
	job, created, err := h.svc.TriggerBroadcast(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, toTriggerResponse(job, created))
}

// SupportUs enqueues the support-us campaign
// POST /api/admin/campaigns/support-us
func (h *Handler) SupportUs(c echo.Context) error {
	var req SupportUsRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}
	job, created, err := h.svc.TriggerSupportUs(c.Request().Context(), req.CampaignID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, toTriggerResponse(job, created))
}

// ConfirmationReminders enqueues a reminder run
// POST /api/admin/campaigns/confirmation-reminders
func (h *Handler) ConfirmationReminders(c echo.Context) error {
	job, created, err := h.svc.TriggerConfirmationReminders(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, toTriggerResponse(job, created))
}

// DailyDigest enqueues the digest for a date, today by default
// POST /api/admin/campaigns/daily-digest
// POST /api/cron/daily-digest
func (h *Handler) DailyDigest(c echo.Context) error {
	var req DailyDigestRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}
	job, created, err := h.svc.TriggerDailyDigest(c.Request().Context(), req.Date)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, toTriggerResponse(job, created))
}

// QueueStats returns job counts by status
// GET /api/admin/queue/stats
func (h *Handler) QueueStats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// RetryDeadLetter requeues dead jobs
// POST /api/admin/queue/retry-dead-letter?name=
func (h *Handler) RetryDeadLetter(c echo.Context) error {
	n, err := h.svc.RetryDeadLetter(c.Request().Context(), c.QueryParam("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"requeued": n})
}

// GetJob returns one job
// GET /api/admin/queue/jobs/:id
func (h *Handler) GetJob(c echo.Context) error {
	job, err := h.svc.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, job)
}
