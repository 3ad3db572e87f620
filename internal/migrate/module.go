package migrate

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

// Module applies pending migrations while the app is being built, before
// any worker or HTTP listener starts. Controlled by DB_AUTO_MIGRATE.
var Module = fx.Module("migrate",
	fx.Invoke(AutoMigrate),
)

// AutoMigrate runs pending migrations when enabled.
func AutoMigrate(db *bun.DB, cfg *config.Config, log *slog.Logger) error {
	log = log.With(logger.Scope("migrate"))
	if !cfg.Database.AutoMigrate {
		log.Debug("auto-migrate disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	if err := RunWithDB(ctx, db.DB); err != nil {
		log.Error("auto-migrate failed", logger.Error(err))
		return err
	}
	log.Info("auto-migrate complete", slog.Duration("duration", time.Since(start)))
	return nil
}
