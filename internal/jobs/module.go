package jobs

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/internal/config"
)

// Module provides the job queue, the handler registry and the worker.
var Module = fx.Module("jobs",
	fx.Provide(
		NewQueueFromConfig,
		NewRegistry,
		NewWorkerFromConfig,
		func(q *Queue) Enqueuer { return q },
	),
	fx.Invoke(RegisterWorkerLifecycle),
)

// NewQueueFromConfig builds the queue from application config.
func NewQueueFromConfig(db bun.IDB, cfg *config.Config, log *slog.Logger) *Queue {
	return NewQueue(db, QueueConfig{
		MaxAttempts: cfg.Jobs.MaxAttempts,
		BaseBackoff: cfg.Jobs.BaseBackoff,
		MaxBackoff:  cfg.Jobs.MaxBackoff,
	}, log)
}

// NewWorkerFromConfig builds the worker from application config.
func NewWorkerFromConfig(q *Queue, registry *Registry, cfg *config.Config, log *slog.Logger) *Worker {
	return NewWorker(q, registry, WorkerConfig{
		PollInterval:        cfg.Jobs.PollInterval,
		Concurrency:         cfg.Jobs.Concurrency,
		RatePerSecond:       cfg.Jobs.RatePerSecond,
		StaleAfter:          cfg.Jobs.StaleAfter,
		RecoverStaleOnStart: true,
	}, log)
}

// RegisterWorkerLifecycle starts the worker with the application when enabled.
func RegisterWorkerLifecycle(lc fx.Lifecycle, w *Worker, cfg *config.Config, log *slog.Logger) {
	if !cfg.Jobs.Enabled {
		log.Info("job worker disabled", slog.String("env", "JOBS_WORKER_ENABLED"))
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return w.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return w.Stop(ctx)
		},
	})
}
