package jobpostings

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vaguinhas/vaguinhas/domain/email"
	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/internal/storage"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

const (
	defaultLimit = 20
	maxLimit     = 50
)

var (
	ErrPostingNotFound    = apperror.New(http.StatusNotFound, "job_posting_not_found", "Job posting not found")
	ErrInvalidID          = apperror.NewBadRequest("Invalid job posting id")
	ErrAlreadyReviewed    = apperror.NewConflict("Job posting has already been reviewed")
	ErrStorageUnavailable = apperror.ErrUnavailable.WithMessage("Logo uploads are not available")
	ErrInvalidLogo        = apperror.NewBadRequest("Logo was not uploaded")
)

// Store persists postings.
type Store interface {
	Create(ctx context.Context, p *JobPosting) error
	FindByID(ctx context.Context, id string) (*JobPosting, error)
	List(ctx context.Context, f Filter) ([]*JobPosting, int, error)
	Review(ctx context.Context, id string, status Status, reason *string, at time.Time) (*JobPosting, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListApprovedSince(ctx context.Context, since time.Time, stacks []string, seniority string, limit int) ([]*JobPosting, error)
}

// LogoStorage holds company logos.
type LogoStorage interface {
	Enabled() bool
	PresignLogoUpload(ctx context.Context, contentType string) (*storage.PresignedUpload, error)
	PublicURL(key string) string
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Service implements posting submission, listing and moderation.
type Service struct {
	store Store
	logos LogoStorage
	mail  email.Enqueuer
	app   config.AppConfig
	log   *slog.Logger
	now   func() time.Time
}

// NewService creates the job postings service.
func NewService(store Store, logos LogoStorage, mail email.Enqueuer, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		store: store,
		logos: logos,
		mail:  mail,
		app:   cfg.App,
		log:   log.With(logger.Scope("jobpostings.svc")),
		now:   time.Now,
	}
}

// Create stores a pending posting and notifies the admin and the contact.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*JobPosting, error) {
	p := &JobPosting{
		LinkVaga:       strings.TrimSpace(req.LinkVaga),
		NomeEmpresa:    strings.TrimSpace(req.NomeEmpresa),
		Cargo:          strings.TrimSpace(req.Cargo),
		Descricao:      req.Descricao,
		Stack:          strings.ToLower(req.Stack),
		SeniorityLevel: strings.ToLower(req.SeniorityLevel),
		ContactEmail:   strings.ToLower(strings.TrimSpace(req.ContactEmail)),
		Status:         StatusPending,
	}

	if req.LogoKey != nil && *req.LogoKey != "" {
		if err := s.checkLogo(ctx, *req.LogoKey); err != nil {
			return nil, err
		}
		p.LogoKey = req.LogoKey
	}

	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("job posting submitted", slog.String("id", p.ID), slog.String("company", p.NomeEmpresa))

	data := s.templateData(p)
	if s.app.AdminEmail != "" {
		data["contactEmail"] = p.ContactEmail
		data["id"] = p.ID
		s.notify(ctx, email.Message{
			Template:       "admin-new-posting",
			To:             s.app.AdminEmail,
			Subject:        "Nova vaga para revisar: " + p.Cargo,
			Data:           data,
			IdempotencyKey: "admin-new-posting:" + p.ID,
		})
	}
	s.notify(ctx, email.Message{
		Template:       "job-posting-received",
		To:             p.ContactEmail,
		Subject:        "Recebemos sua vaga",
		Data:           s.templateData(p),
		IdempotencyKey: "job-posting-received:" + p.ID,
	})
	return p, nil
}

func (s *Service) checkLogo(ctx context.Context, key string) error {
	if !storage.IsLogoKey(key) {
		return ErrInvalidLogo
	}
	if !s.logos.Enabled() {
		return ErrStorageUnavailable
	}
	ok, err := s.logos.Exists(ctx, key)
	if err != nil {
		return apperror.ErrUnavailable.WithInternal(err)
	}
	if !ok {
		return ErrInvalidLogo
	}
	return nil
}

// PresignLogo returns an upload URL for a company logo.
func (s *Service) PresignLogo(ctx context.Context, contentType string) (*storage.PresignedUpload, error) {
	if !s.logos.Enabled() {
		return nil, ErrStorageUnavailable
	}
	up, err := s.logos.PresignLogoUpload(ctx, contentType)
	if err != nil {
		if errors.Is(err, storage.ErrDisabled) {
			return nil, ErrStorageUnavailable
		}
		return nil, apperror.NewInternal("failed to create upload URL", err)
	}
	return up, nil
}

// ListApproved returns approved postings for the public board.
func (s *Service) ListApproved(ctx context.Context, q *ListQuery) (*ListResponse, error) {
	page, limit := pageParams(q.Page, q.Limit)
	items, total, err := s.store.List(ctx, Filter{
		Status:    StatusApproved,
		Stack:     strings.ToLower(q.Stack),
		Seniority: strings.ToLower(q.Seniority),
		Offset:    (page - 1) * limit,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}
	return s.page(items, total, page, limit, false), nil
}

// GetApproved returns an approved posting. Pending and rejected postings
// are reported as not found.
func (s *Service) GetApproved(ctx context.Context, id string) (*PostingDTO, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusApproved {
		return nil, ErrPostingNotFound
	}
	dto := s.toDTO(p, false)
	return &dto, nil
}

// AdminList returns postings in any status.
func (s *Service) AdminList(ctx context.Context, q *AdminListQuery) (*ListResponse, error) {
	page, limit := pageParams(q.Page, q.Limit)
	items, total, err := s.store.List(ctx, Filter{
		Status: Status(q.Status),
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	return s.page(items, total, page, limit, true), nil
}

// Review approves or rejects a pending posting and emails the contact.
func (s *Service) Review(ctx context.Context, id string, req *ReviewRequest) (*PostingDTO, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}

	var reason *string
	if req.Status == StatusRejected && req.Reason != nil && strings.TrimSpace(*req.Reason) != "" {
		r := strings.TrimSpace(*req.Reason)
		reason = &r
	}

	p, err := s.store.Review(ctx, id, req.Status, reason, s.now())
	if err != nil {
		return nil, err
	}
	if p == nil {
		if _, err := s.find(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyReviewed
	}
	s.log.Info("job posting reviewed", slog.String("id", p.ID), slog.String("status", string(p.Status)))

	data := s.templateData(p)
	msg := email.Message{To: p.ContactEmail, Data: data}
	if p.Status == StatusApproved {
		msg.Template = "job-posting-approved"
		msg.Subject = "Sua vaga foi publicada!"
		data["postingUrl"] = s.app.URL("/vagas/" + p.ID)
	} else {
		msg.Template = "job-posting-rejected"
		msg.Subject = "Sua vaga não foi aprovada"
		if reason != nil {
			data["reason"] = *reason
		}
	}
	msg.IdempotencyKey = msg.Template + ":" + p.ID
	s.notify(ctx, msg)

	dto := s.toDTO(p, true)
	return &dto, nil
}

// Delete removes a posting and its logo.
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPostingNotFound
	}
	if p.LogoKey != nil && s.logos.Enabled() {
		if err := s.logos.Delete(ctx, *p.LogoKey); err != nil {
			s.log.Warn("failed to delete logo", slog.String("key", *p.LogoKey), logger.Error(err))
		}
	}
	s.log.Info("job posting deleted", slog.String("id", id))
	return nil
}

// ListApprovedSince feeds the daily digest.
func (s *Service) ListApprovedSince(ctx context.Context, since time.Time, stacks []string, seniority string, limit int) ([]PostingDTO, error) {
	items, err := s.store.ListApprovedSince(ctx, since, stacks, seniority, limit)
	if err != nil {
		return nil, err
	}
	out := make([]PostingDTO, 0, len(items))
	for _, p := range items {
		out = append(out, s.toDTO(p, false))
	}
	return out, nil
}

// DigestItem converts a posting into daily-digest template data.
func DigestItem(p PostingDTO) map[string]any {
	return map[string]any{
		"cargo":          p.Cargo,
		"nomeEmpresa":    p.NomeEmpresa,
		"linkVaga":       p.LinkVaga,
		"stack":          p.Stack,
		"seniorityLevel": p.SeniorityLevel,
		"logoUrl":        p.LogoURL,
	}
}

func (s *Service) find(ctx context.Context, id string) (*JobPosting, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPostingNotFound
	}
	return p, nil
}

func (s *Service) notify(ctx context.Context, msg email.Message) {
	if _, _, err := s.mail.Enqueue(ctx, msg); err != nil {
		s.log.Warn("failed to queue job posting email",
			slog.String("template", msg.Template),
			logger.Error(err))
	}
}

func (s *Service) templateData(p *JobPosting) map[string]any {
	return map[string]any{
		"cargo":          p.Cargo,
		"nomeEmpresa":    p.NomeEmpresa,
		"linkVaga":       p.LinkVaga,
		"stack":          p.Stack,
		"seniorityLevel": p.SeniorityLevel,
	}
}

func (s *Service) page(items []*JobPosting, total, page, limit int, admin bool) *ListResponse {
	out := &ListResponse{Items: make([]PostingDTO, 0, len(items)), Total: total, Page: page, Limit: limit}
	for _, p := range items {
		out.Items = append(out.Items, s.toDTO(p, admin))
	}
	return out
}

func (s *Service) toDTO(p *JobPosting, admin bool) PostingDTO {
	dto := PostingDTO{
		ID:             p.ID,
		LinkVaga:       p.LinkVaga,
		NomeEmpresa:    p.NomeEmpresa,
		Cargo:          p.Cargo,
		Descricao:      p.Descricao,
		Stack:          p.Stack,
		SeniorityLevel: p.SeniorityLevel,
		Status:         p.Status,
		ReviewedAt:     p.ReviewedAt,
		CreatedAt:      p.CreatedAt,
	}
	if p.LogoKey != nil {
		dto.LogoURL = s.logos.PublicURL(*p.LogoKey)
	}
	if admin {
		dto.ContactEmail = p.ContactEmail
		dto.RejectionReason = p.RejectionReason
	}
	return dto
}

func pageParams(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
