package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/vaguinhas/vaguinhas/internal/jobs"
	"github.com/vaguinhas/vaguinhas/pkg/auth"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

// JobName is the queue job that renders and sends one email.
const JobName = "email.send"

// Message is one email to deliver through the queue.
type Message struct {
	Template string
	To       string
	ToName   string
	Subject  string
	Data     map[string]any
	// Unsubscribe adds a signed unsubscribe link for newsletter recipients.
	Unsubscribe bool
	// IdempotencyKey deduplicates sends across retries and re-runs of a campaign.
	IdempotencyKey string
	Delay          time.Duration
}

// Enqueuer is how domains send email.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg Message) (*jobs.Job, bool, error)
}

// sendPayload is the JSON stored on an email.send job.
type sendPayload struct {
	Template       string         `json:"template"`
	To             string         `json:"to"`
	ToName         string         `json:"toName,omitempty"`
	Subject        string         `json:"subject"`
	Data           map[string]any `json:"data,omitempty"`
	UnsubscribeURL string         `json:"unsubscribeUrl,omitempty"`
}

// Service queues emails.
type Service struct {
	queue jobs.Enqueuer
	cfg   *Config
	log   *slog.Logger
}

// NewService creates the email service.
func NewService(queue jobs.Enqueuer, cfg *Config, log *slog.Logger) *Service {
	return &Service{
		queue: queue,
		cfg:   cfg,
		log:   log.With(logger.Scope("email.svc")),
	}
}

// Enqueue queues msg for delivery. With an IdempotencyKey, enqueuing the
// same message twice is a no-op and returns created=false.
func (s *Service) Enqueue(ctx context.Context, msg Message) (*jobs.Job, bool, error) {
	to := strings.TrimSpace(strings.ToLower(msg.To))
	if to == "" {
		return nil, false, fmt.Errorf("email recipient is required")
	}
	if msg.Template == "" {
		return nil, false, fmt.Errorf("email template is required")
	}

	payload := sendPayload{
		Template: msg.Template,
		To:       to,
		ToName:   msg.ToName,
		Subject:  msg.Subject,
		Data:     msg.Data,
	}
	if msg.Unsubscribe {
		payload.UnsubscribeURL = s.UnsubscribeURL(to)
	}

	job, created, err := s.queue.Enqueue(ctx, jobs.EnqueueOptions{
		Name:           JobName,
		Payload:        payload,
		Delay:          msg.Delay,
		IdempotencyKey: msg.IdempotencyKey,
	})
	if err != nil {
		return nil, false, fmt.Errorf("enqueue %s email: %w", msg.Template, err)
	}

	if created {
		s.log.Debug("email queued",
			slog.String("job_id", job.ID),
			slog.String("template", msg.Template),
			slog.String("to", to))
	}
	return job, created, nil
}

// UnsubscribeURL returns the signed one-click unsubscribe link for email.
func (s *Service) UnsubscribeURL(email string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", auth.UnsubscribeToken(s.cfg.UnsubscribeSecret, email))
	return strings.TrimRight(s.cfg.FrontendURL, "/") + "/unsubscribe?" + q.Encode()
}
