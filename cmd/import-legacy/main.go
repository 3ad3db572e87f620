// Command import-legacy copies the MongoDB collections of the previous
// deployment into Postgres. Safe to re-run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/internal/database"
	"github.com/vaguinhas/vaguinhas/internal/legacy"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

func main() {
	config.LoadDotEnv(".")

	dryRun := flag.Bool("dry-run", false, "map documents without writing")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall timeout")
	flag.Parse()

	var (
		log *slog.Logger
		cfg *config.Config
		db  *bun.DB
	)
	app := fx.New(
		fx.NopLogger,
		logger.Module,
		config.Module,
		database.Module,
		fx.Populate(&log, &cfg, &db),
	)
	startCtx, started := context.WithTimeout(context.Background(), 30*time.Second)
	defer started()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	err := run(ctx, log, cfg, db, *dryRun)
	cancel()

	stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	_ = app.Stop(stopCtx)
	stop()

	if err != nil {
		log.Error("legacy import failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, cfg *config.Config, db *bun.DB, dryRun bool) error {
	src, err := legacy.Connect(ctx, cfg.Legacy.MongoURI, cfg.Legacy.MongoDatabase)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close(context.Background()) }()

	im := legacy.NewImporter(src, db, legacy.Options{
		DryRun:   dryRun,
		Currency: cfg.Payments.Currency,
	}, log)

	report, err := im.Run(ctx)
	if report != nil {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
	}
	return err
}
