// Package migrate applies the embedded goose migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/vaguinhas/vaguinhas/migrations"
)

// goose keeps its dialect and filesystem in package globals.
var gooseMu sync.Mutex

// Migrator runs schema migrations against the core database.
type Migrator struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMigrator creates a Migrator on top of the bun connection.
func NewMigrator(db *bun.DB, logger *zap.Logger) *Migrator {
	return &Migrator{
		db:     db.DB,
		logger: logger.Named("migrator"),
	}
}

// withGoose points goose at the embedded migrations and runs fn.
func withGoose(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return fn()
}

// Up runs all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	before, _ := m.Version(ctx)
	m.logger.Info("running database migrations", zap.Int64("from_version", before))

	if err := withGoose(func() error { return goose.UpContext(ctx, m.db, ".") }); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	after, _ := m.Version(ctx)
	m.logger.Info("migrations completed", zap.Int64("version", after))
	return nil
}

// UpTo runs migrations up to and including version.
func (m *Migrator) UpTo(ctx context.Context, version int64) error {
	m.logger.Info("running database migrations up to version", zap.Int64("version", version))

	if err := withGoose(func() error { return goose.UpToContext(ctx, m.db, ".", version) }); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Down rolls back the last applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	m.logger.Info("rolling back last migration")

	if err := withGoose(func() error { return goose.DownContext(ctx, m.db, ".") }); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	return nil
}

// Status prints the state of every migration through goose's logger.
func (m *Migrator) Status(ctx context.Context) error {
	if err := withGoose(func() error { return goose.StatusContext(ctx, m.db, ".") }); err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	return nil
}

// Version returns the current database version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	var version int64
	err := withGoose(func() error {
		v, err := goose.GetDBVersionContext(ctx, m.db)
		version = v
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}

// Pending lists the embedded migration versions newer than current.
func Pending(current int64) ([]int64, error) {
	var versions []int64
	err := withGoose(func() error {
		ms, err := goose.CollectMigrations(".", current, goose.MaxVersion)
		if err != nil {
			return err
		}
		for _, mig := range ms {
			if mig.Version > current {
				versions = append(versions, mig.Version)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect migrations: %w", err)
	}
	return versions, nil
}

// RunWithDB runs all pending migrations on a raw connection. The server
// uses it for auto-migration at startup.
func RunWithDB(ctx context.Context, db *sql.DB) error {
	if err := withGoose(func() error { return goose.UpContext(ctx, db, ".") }); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
