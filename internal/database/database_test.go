package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/vaguinhas/vaguinhas/internal/config"
)

func newMockDB(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqlDB, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestPoolConfig(t *testing.T) {
	pc, err := PoolConfig(config.DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Database: "vaguinhas", SSLMode: "disable",
		MaxOpenConns: 10, MaxIdleConns: 2, MaxIdleTime: time.Minute,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 10, pc.MaxConns)
	assert.EqualValues(t, 2, pc.MinConns)
	assert.Equal(t, time.Minute, pc.MaxConnIdleTime)
	assert.Equal(t, "vaguinhas", pc.ConnConfig.RuntimeParams["application_name"])
}

func TestTx_RollbackAfterCommit(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := Begin(context.Background(), db)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx(t *testing.T) {
	t.Run("commits", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := InTx(context.Background(), db, func(tx bun.IDB) error {
			_, err := tx.ExecContext(context.Background(), "DELETE FROM core.magic_links")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := InTx(context.Background(), db, func(bun.IDB) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactor(t *testing.T) {
	t.Run("joins nested work and rolls back together", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO core.users").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO queue.jobs").WillReturnError(errors.New("queue full"))
		mock.ExpectRollback()

		tr := NewTransactor(db)
		err := tr.InTx(context.Background(), func(ctx context.Context) error {
			_, isTx := Conn(ctx, db).(bun.Tx)
			assert.True(t, isTx)
			if _, err := Conn(ctx, db).ExecContext(ctx, "INSERT INTO core.users (email) VALUES ('ana@example.com')"); err != nil {
				return err
			}
			return tr.InTx(ctx, func(ctx context.Context) error {
				_, err := Conn(ctx, db).ExecContext(ctx, "INSERT INTO queue.jobs (name) VALUES ('email.send')")
				return err
			})
		})
		assert.EqualError(t, err, "queue full")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("without a transaction", func(t *testing.T) {
		db, _ := newMockDB(t)
		assert.Same(t, db, Conn(context.Background(), db))
	})
}

func TestQueryHook(t *testing.T) {
	h := newQueryHook(slog.New(slog.NewTextHandler(io.Discard, nil)), true, time.Second)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		h.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
		h.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now().Add(-2 * time.Second)})
		h.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT broken", StartTime: time.Now(), Err: assert.AnError})
	})
}
