// Package main provides the entry point for the vaguinhas API server.
package main

import (
	"log/slog"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/vaguinhas/vaguinhas/domain/accounts"
	"github.com/vaguinhas/vaguinhas/domain/campaigns"
	"github.com/vaguinhas/vaguinhas/domain/email"
	"github.com/vaguinhas/vaguinhas/domain/health"
	"github.com/vaguinhas/vaguinhas/domain/jobpostings"
	"github.com/vaguinhas/vaguinhas/domain/payments"
	"github.com/vaguinhas/vaguinhas/domain/scheduler"
	"github.com/vaguinhas/vaguinhas/domain/subscribers"
	"github.com/vaguinhas/vaguinhas/domain/tracing"
	"github.com/vaguinhas/vaguinhas/domain/users"
	"github.com/vaguinhas/vaguinhas/internal/cache"
	"github.com/vaguinhas/vaguinhas/internal/catalog"
	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/internal/database"
	"github.com/vaguinhas/vaguinhas/internal/jobs"
	"github.com/vaguinhas/vaguinhas/internal/migrate"
	"github.com/vaguinhas/vaguinhas/internal/server"
	"github.com/vaguinhas/vaguinhas/internal/storage"
	"github.com/vaguinhas/vaguinhas/pkg/auth"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
	"github.com/vaguinhas/vaguinhas/pkg/ratelimit"
)

func main() {
	config.LoadDotEnv(".")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure
		logger.Module,
		config.Module,
		catalog.Module,
		database.Module,
		migrate.Module,
		cache.Module,
		server.Module,
		tracing.Module,
		storage.Module,
		jobs.Module,

		auth.Module,
		ratelimit.Module,

		// Domain
		health.Module,
		email.Module,
		users.Module,
		subscribers.Module,
		accounts.Module,
		jobpostings.Module,
		payments.Module,
		campaigns.Module,

		// Cron-driven campaign triggers and queue maintenance
		scheduler.Module,
	).Run()
}
