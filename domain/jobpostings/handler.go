package jobpostings

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vaguinhas/vaguinhas/internal/server"
)

// Handler handles HTTP requests for job postings
type Handler struct {
	svc *Service
}

// NewHandler creates a new job postings handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create submits a posting for moderation
// POST /api/job-postings
func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}

	p, err := h.svc.Create(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"message": "Job posting received and waiting for review",
		"id":      p.ID,
		"status":  p.Status,
	})
}

// LogoUploadURL returns a presigned upload URL
// POST /api/job-postings/logo-upload-url
func (h *Handler) LogoUploadURL(c echo.Context) error {
	var req LogoUploadRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}

	up, err := h.svc.PresignLogo(c.Request().Context(), req.ContentType)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, up)
}

// List returns approved postings
// GET /api/job-postings
func (h *Handler) List(c echo.Context) error {
	var q ListQuery
	if err := server.BindAndValidate(c, &q); err != nil {
		return err
	}

	res, err := h.svc.ListApproved(c.Request().Context(), &q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Get returns one approved posting
// GET /api/job-postings/:id
func (h *Handler) Get(c echo.Context) error {
	p, err := h.svc.GetApproved(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// AdminList returns postings in any status
// GET /api/admin/job-postings
func (h *Handler) AdminList(c echo.Context) error {
	var q AdminListQuery
	if err := server.BindAndValidate(c, &q); err != nil {
		return err
	}

	res, err := h.svc.AdminList(c.Request().Context(), &q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Review approves or rejects a posting
// PATCH /api/admin/job-postings/:id
func (h *Handler) Review(c echo.Context) error {
	var req ReviewRequest
	if err := server.BindAndValidate(c, &req); err != nil {
		return err
	}

	p, err := h.svc.Review(c.Request().Context(), c.Param("id"), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// Delete removes a posting
// DELETE /api/admin/job-postings/:id
func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
