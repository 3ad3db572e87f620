package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/vaguinhas/vaguinhas/internal/jobs"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

// CampaignTrigger enqueues campaign jobs. Triggers carry idempotency keys,
// so every instance may fire the same schedule.
type CampaignTrigger interface {
	TriggerDailyDigest(ctx context.Context, date string) (*jobs.Job, bool, error)
	TriggerConfirmationReminders(ctx context.Context) (*jobs.Job, bool, error)
	TriggerSupportUs(ctx context.Context, campaignID string) (*jobs.Job, bool, error)
}

// MagicLinkCleaner purges used and expired magic links.
type MagicLinkCleaner interface {
	CleanupMagicLinks(ctx context.Context) (int64, error)
}

// QueueMaintainer is the maintenance side of the job queue.
type QueueMaintainer interface {
	RecoverStale(ctx context.Context, olderThan time.Duration) (int, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// Tasks holds the scheduled task bodies.
type Tasks struct {
	campaigns CampaignTrigger
	links     MagicLinkCleaner
	queue     QueueMaintainer
	cfg       *Config
	log       *slog.Logger
	now       func() time.Time
}

// NewTasks creates the scheduled task set.
func NewTasks(campaigns CampaignTrigger, links MagicLinkCleaner, queue QueueMaintainer, cfg *Config, log *slog.Logger) *Tasks {
	return &Tasks{
		campaigns: campaigns,
		links:     links,
		queue:     queue,
		cfg:       cfg,
		log:       log.With(logger.Scope("scheduler.tasks")),
		now:       time.Now,
	}
}

func (t *Tasks) today() string {
	loc := t.cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.now().In(loc).Format("2006-01-02")
}

// DailyDigest enqueues today's digest.
func (t *Tasks) DailyDigest(ctx context.Context) error {
	job, created, err := t.campaigns.TriggerDailyDigest(ctx, t.today())
	if err != nil {
		return err
	}
	t.log.Info("daily digest scheduled", slog.String("job_id", job.ID), slog.Bool("created", created))
	return nil
}

// ConfirmationReminders enqueues the hourly reminder run.
func (t *Tasks) ConfirmationReminders(ctx context.Context) error {
	_, _, err := t.campaigns.TriggerConfirmationReminders(ctx)
	return err
}

// SupportUs enqueues the support-us campaign, once per day.
func (t *Tasks) SupportUs(ctx context.Context) error {
	job, created, err := t.campaigns.TriggerSupportUs(ctx, "scheduled-"+t.today())
	if err != nil {
		return err
	}
	t.log.Info("support-us campaign scheduled", slog.String("job_id", job.ID), slog.Bool("created", created))
	return nil
}

// MagicLinkCleanup purges used and expired magic links.
func (t *Tasks) MagicLinkCleanup(ctx context.Context) error {
	_, err := t.links.CleanupMagicLinks(ctx)
	return err
}

// StaleJobRecovery returns jobs stuck in processing to pending.
func (t *Tasks) StaleJobRecovery(ctx context.Context) error {
	_, err := t.queue.RecoverStale(ctx, t.cfg.StaleAfter)
	return err
}

// JobCleanup deletes completed jobs past retention.
func (t *Tasks) JobCleanup(ctx context.Context) error {
	n, err := t.queue.Cleanup(ctx, t.cfg.RetainCompleted)
	if err != nil {
		return err
	}
	if n > 0 {
		t.log.Info("completed jobs removed", slog.Int("count", n))
	}
	return nil
}
