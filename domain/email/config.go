package email

import (
	"github.com/vaguinhas/vaguinhas/internal/config"
)

// Config is the slice of application config the email domain reads.
type Config struct {
	Enabled        bool
	MailgunDomain  string
	MailgunAPIKey  string
	MailgunAPIBase string
	FromEmail      string
	FromName       string
	SendsPerSecond float64 // zero disables throttling

	FrontendURL       string
	UnsubscribeSecret string
}

func NewConfig(cfg *config.Config) *Config {
	return &Config{
		Enabled:           cfg.Email.Enabled,
		MailgunDomain:     cfg.Email.MailgunDomain,
		MailgunAPIKey:     cfg.Email.MailgunAPIKey,
		MailgunAPIBase:    cfg.Email.MailgunAPIBase,
		FromEmail:         cfg.Email.FromEmail,
		FromName:          cfg.Email.FromName,
		SendsPerSecond:    cfg.Email.SendsPerSecond,
		FrontendURL:       cfg.App.FrontendURL,
		UnsubscribeSecret: cfg.Auth.JWTSecret,
	}
}

// IsConfigured reports whether Mailgun credentials are present.
func (c *Config) IsConfigured() bool {
	return c.MailgunDomain != "" && c.MailgunAPIKey != ""
}
