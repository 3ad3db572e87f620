package scheduler

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/domain/accounts"
	"github.com/vaguinhas/vaguinhas/domain/campaigns"
	"github.com/vaguinhas/vaguinhas/internal/jobs"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

// Module provides scheduled task functionality
var Module = fx.Module("scheduler",
	fx.Provide(
		NewConfig,
		func(cfg *Config, log *slog.Logger) *Scheduler { return NewScheduler(log, cfg.Location) },
		func(s *campaigns.Service) CampaignTrigger { return s },
		func(s *accounts.Service) MagicLinkCleaner { return s },
		func(q *jobs.Queue) QueueMaintainer { return q },
		NewTasks,
	),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for registering scheduled tasks
type TaskParams struct {
	fx.In
	Scheduler *Scheduler
	Tasks     *Tasks
	Log       *slog.Logger
	Cfg       *Config
}

// RegisterTasks registers all scheduled tasks
func RegisterTasks(p TaskParams) error {
	if !p.Cfg.Enabled {
		p.Log.Info("scheduler disabled, skipping task registration")
		return nil
	}

	t := p.Tasks
	register := func(name, schedule string, interval time.Duration, task TaskFunc) {
		if err := addScheduledTask(p.Scheduler, p.Log, name, schedule, interval, task); err != nil {
			p.Log.Error("failed to register scheduled task",
				slog.String("name", name),
				logger.Error(err))
		}
	}

	register("daily_digest", p.Cfg.DailyDigestSchedule, 0, t.DailyDigest)
	register("confirmation_reminders", "", p.Cfg.ConfirmationReminderInterval, t.ConfirmationReminders)
	register("support_us", p.Cfg.SupportUsSchedule, 0, t.SupportUs)
	register("magic_link_cleanup", "", p.Cfg.MagicLinkCleanupInterval, t.MagicLinkCleanup)
	register("stale_job_recovery", "", p.Cfg.StaleJobRecoveryInterval, t.StaleJobRecovery)
	register("job_cleanup", p.Cfg.CompletedJobCleanupSchedule, 0, t.JobCleanup)

	p.Log.Info("registered scheduled tasks",
		slog.Any("tasks", p.Scheduler.ListTasks()))

	return nil
}

// addScheduledTask prefers schedule over interval. With neither set the task
// stays disabled.
func addScheduledTask(s *Scheduler, log *slog.Logger, name, schedule string, interval time.Duration, task TaskFunc) error {
	switch {
	case schedule != "":
		return s.AddCronTask(name, schedule, task)
	case interval > 0:
		return s.AddIntervalTask(name, interval, task)
	default:
		log.Info("scheduled task disabled", slog.String("name", name))
		return nil
	}
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *Config) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
