package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

const mailgunTimeout = 30 * time.Second

// MailgunSender delivers mail through the Mailgun HTTP API.
type MailgunSender struct {
	client *mailgun.MailgunImpl
	from   string
	log    *slog.Logger
}

// NewMailgunSender builds a sender from cfg. Every missing setting is
// reported at once.
func NewMailgunSender(cfg *Config, log *slog.Logger) (*MailgunSender, error) {
	if err := checkMailgun(cfg); err != nil {
		return nil, err
	}
	client := mailgun.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey)
	if cfg.MailgunAPIBase != "" {
		client.SetAPIBase(cfg.MailgunAPIBase)
	}
	return &MailgunSender{
		client: client,
		from:   address(cfg.FromName, cfg.FromEmail),
		log:    log.With(logger.Scope("email.mailgun")),
	}, nil
}

func checkMailgun(cfg *Config) error {
	var errs []error
	for _, req := range []struct{ env, value string }{
		{"MAILGUN_DOMAIN", cfg.MailgunDomain},
		{"MAILGUN_API_KEY", cfg.MailgunAPIKey},
		{"EMAIL_FROM_ADDRESS", cfg.FromEmail},
		{"EMAIL_FROM_NAME", cfg.FromName},
	} {
		if req.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", req.env))
		}
	}
	return errors.Join(errs...)
}

// address formats a display-name mailbox, quoting the name when needed.
func address(name, email string) string {
	if name == "" {
		return email
	}
	return (&mail.Address{Name: name, Address: email}).String()
}

// Send delivers one message. Errors are returned as-is so the email.send
// job retries.
func (s *MailgunSender) Send(ctx context.Context, opts SendOptions) (*SendResult, error) {
	msg := s.client.NewMessage(s.from, opts.Subject, opts.Text, address(opts.ToName, opts.To))
	if opts.HTML != "" {
		msg.SetHtml(opts.HTML)
	}
	if opts.Tag != "" {
		if err := msg.AddTag(opts.Tag); err != nil {
			s.log.Debug("tag dropped", slog.String("tag", opts.Tag), logger.Error(err))
		}
	}
	if opts.UnsubscribeURL != "" {
		msg.AddHeader("List-Unsubscribe", "<"+opts.UnsubscribeURL+">")
		msg.AddHeader("List-Unsubscribe-Post", "List-Unsubscribe=One-Click")
	}

	ctx, cancel := context.WithTimeout(ctx, mailgunTimeout)
	defer cancel()

	_, id, err := s.client.Send(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("mailgun: send %q to %s: %w", opts.Tag, opts.To, err)
	}
	s.log.Debug("email accepted", slog.String("to", opts.To), slog.String("message_id", id))
	return &SendResult{MessageID: id}, nil
}
