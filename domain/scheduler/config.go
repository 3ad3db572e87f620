package scheduler

import (
	"time"

	"github.com/vaguinhas/vaguinhas/internal/config"
)

// Config holds scheduler configuration
type Config struct {
	// Enabled controls whether the scheduler runs
	Enabled bool

	// Location is the timezone cron expressions are evaluated in
	Location *time.Location

	// Cron expressions with seconds: "second minute hour day-of-month month day-of-week".
	// An empty SupportUsSchedule disables that task.
	DailyDigestSchedule         string
	SupportUsSchedule           string
	CompletedJobCleanupSchedule string

	ConfirmationReminderInterval time.Duration
	MagicLinkCleanupInterval     time.Duration
	StaleJobRecoveryInterval     time.Duration

	// StaleAfter is how long a job may stay processing before it is recovered
	StaleAfter time.Duration
	// RetainCompleted is how long completed jobs are kept
	RetainCompleted time.Duration
}

// NewConfig derives the scheduler config from the application config
func NewConfig(cfg *config.Config) *Config {
	s := cfg.Scheduler
	return &Config{
		Enabled:                      s.Enabled,
		Location:                     cfg.App.Location(),
		DailyDigestSchedule:          s.DailyDigestSchedule,
		SupportUsSchedule:            s.SupportUsSchedule,
		CompletedJobCleanupSchedule:  s.CompletedJobCleanupSchedule,
		ConfirmationReminderInterval: s.ConfirmationReminderEvery,
		MagicLinkCleanupInterval:     s.MagicLinkCleanupEvery,
		StaleJobRecoveryInterval:     s.StaleJobRecoveryEvery,
		StaleAfter:                   cfg.Jobs.StaleAfter,
		RetainCompleted:              cfg.Jobs.RetainDone,
	}
}
