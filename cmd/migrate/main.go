// Command migrate manages the database schema.
//
//	migrate [-env production] up|down|status|version|pending|up-to <version>
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/internal/migrate"
)

func main() {
	config.LoadDotEnv(".")

	production := flag.Bool("production", os.Getenv("GO_ENV") == "production", "JSON logs")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall timeout")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: migrate [flags] up|down|status|version|pending|up-to <version>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	log, err := newLogger(*production)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(flag.Args(), *timeout, log); err != nil {
		log.Error("migrate failed", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(args []string, timeout time.Duration, log *zap.Logger) error {
	var dbCfg config.DatabaseConfig
	if err := env.Parse(&dbCfg); err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dbCfg.DSN())))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Info("connected", zap.String("host", dbCfg.Host), zap.String("database", dbCfg.Database))

	m := migrate.NewMigrator(db, log)

	switch args[0] {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	case "status":
		return m.Status(ctx)
	case "version":
		v, err := m.Version(ctx)
		if err != nil {
			return err
		}
		log.Info("current version", zap.Int64("version", v))
		return nil
	case "pending":
		v, err := m.Version(ctx)
		if err != nil {
			return err
		}
		pending, err := migrate.Pending(v)
		if err != nil {
			return err
		}
		log.Info("pending migrations", zap.Int64("version", v), zap.Int64s("pending", pending))
		return nil
	case "up-to":
		if len(args) < 2 {
			return fmt.Errorf("up-to requires a version")
		}
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return m.UpTo(ctx, v)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
