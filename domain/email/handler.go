package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/vaguinhas/vaguinhas/internal/jobs"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

var (
	emailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaguinhas_emails_sent_total",
		Help: "Emails accepted by the provider, by template.",
	}, []string{"template"})

	emailsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaguinhas_emails_failed_total",
		Help: "Email send attempts that failed, by template.",
	}, []string{"template"})
)

// SendHandler is the queue handler for email.send jobs.
type SendHandler struct {
	templates *TemplateService
	sender    Sender
	limiter   *rate.Limiter
	log       *slog.Logger
}

// NewSendHandler creates the email.send handler. Sends are throttled to
// cfg.SendsPerSecond across the worker pool.
func NewSendHandler(templates *TemplateService, sender Sender, cfg *Config, log *slog.Logger) *SendHandler {
	limit := rate.Inf
	if cfg.SendsPerSecond > 0 {
		limit = rate.Limit(cfg.SendsPerSecond)
	}
	return &SendHandler{
		templates: templates,
		sender:    sender,
		limiter:   rate.NewLimiter(limit, 1),
		log:       log.With(logger.Scope("email.send")),
	}
}

// Handle renders and sends the email described by the job payload.
func (h *SendHandler) Handle(ctx context.Context, job *jobs.Job) (any, error) {
	p, err := jobs.Decode[sendPayload](job)
	if err != nil {
		return nil, err
	}
	if p.To == "" {
		return nil, jobs.Permanent(fmt.Errorf("email job %s has no recipient", job.ID))
	}

	html, text := h.render(p)

	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for send slot: %w", err)
	}

	result, err := h.sender.Send(ctx, SendOptions{
		To:             p.To,
		ToName:         p.ToName,
		Subject:        p.Subject,
		HTML:           html,
		Text:           text,
		Tag:            p.Template,
		UnsubscribeURL: p.UnsubscribeURL,
	})
	if err != nil {
		emailsFailed.WithLabelValues(p.Template).Inc()
		return nil, err
	}

	emailsSent.WithLabelValues(p.Template).Inc()
	h.log.Debug("email sent",
		slog.String("job_id", job.ID),
		slog.String("template", p.Template),
		slog.String("to", p.To),
		slog.String("message_id", result.MessageID))

	return result, nil
}

// render builds HTML and text bodies, falling back to a plain layout when
// the template is missing or fails to render.
func (h *SendHandler) render(p sendPayload) (string, string) {
	ctx := make(TemplateContext, len(p.Data)+4)
	for k, v := range p.Data {
		ctx[k] = v
	}
	if _, ok := ctx["title"]; !ok {
		ctx["title"] = p.Subject
	}
	if _, ok := ctx["previewText"]; !ok {
		ctx["previewText"] = p.Subject
	}
	if p.ToName != "" {
		ctx["recipientName"] = p.ToName
	}
	if p.UnsubscribeURL != "" {
		ctx["unsubscribeUrl"] = p.UnsubscribeURL
	}

	if h.templates != nil && h.templates.HasTemplate(p.Template) {
		result, err := h.templates.Render(p.Template, ctx, "default")
		if err == nil {
			return result.HTML, result.Text
		}
		h.log.Warn("template render failed, using fallback",
			slog.String("template", p.Template),
			logger.Error(err))
	} else {
		h.log.Debug("template not found, using fallback", slog.String("template", p.Template))
	}

	return fallbackHTML(p.Subject, ctx), fallbackText(ctx)
}
