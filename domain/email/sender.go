package email

import (
	"context"
	"log/slog"

	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

// Sender delivers a rendered email.
type Sender interface {
	Send(ctx context.Context, opts SendOptions) (*SendResult, error)
}

// SendOptions contains the options for sending an email
type SendOptions struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
	// Tag groups messages in the provider dashboard (template name).
	Tag string
	// UnsubscribeURL becomes the List-Unsubscribe header when set.
	UnsubscribeURL string
}

// SendResult contains the result of sending an email
type SendResult struct {
	MessageID string `json:"messageId"`
}

// NewSender returns the Mailgun sender when email is enabled and configured,
// and a logging no-op sender otherwise. An enabled but incomplete Mailgun
// setup also falls back to the no-op sender.
func NewSender(log *slog.Logger, cfg *Config) Sender {
	if cfg.IsConfigured() && cfg.Enabled {
		mg, err := NewMailgunSender(cfg, log)
		if err == nil {
			log.Info("using Mailgun sender",
				slog.String("domain", cfg.MailgunDomain),
				slog.String("from", cfg.FromEmail))
			return mg
		}
		log.Error("mailgun misconfigured, emails will not be delivered", logger.Error(err))
	}

	log.Info("using no-op email sender (Mailgun not configured or email disabled)")
	return &noOpSender{log: log.With(logger.Scope("email.noop"))}
}

// noOpSender is a no-op email sender for development/testing
type noOpSender struct {
	log *slog.Logger
}

func (s *noOpSender) Send(ctx context.Context, opts SendOptions) (*SendResult, error) {
	s.log.Info("email send (no-op)",
		slog.String("to", opts.To),
		slog.String("subject", opts.Subject),
		slog.String("tag", opts.Tag))

	return &SendResult{MessageID: "noop-" + opts.To}, nil
}
