package payments

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

	"github.com/vaguinhas/vaguinhas/domain/users"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func TestRepository_SettleGrantsInOneTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	until := now.AddDate(0, 0, 30)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE .*payments.*status = 'paid'.*status IN \('pending'\).*RETURNING "?user_id"?`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	mock.ExpectQuery(`SELECT .* FROM .*users.*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "premium"}).AddRow("u1", "ana@example.com", false))
	mock.ExpectExec(`UPDATE .*users.*premium = true.*subscription_status = 'one_time'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var seen *users.User
	st, err := repo.Settle(context.Background(), "pay-1", now, false, func(u *users.User) Grant {
		seen = u
		return Grant{Until: &until, Status: users.SubscriptionOneTime}
	})
	require.NoError(t, err)
	require.NotNil(t, st)
	require.NotNil(t, seen)
	assert.Equal(t, "ana@example.com", seen.Email)
	assert.True(t, st.User.Premium)
	assert.Equal(t, until, *st.User.PremiumUntil)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SettleAlreadyPaid(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE .*payments.*status IN \('pending'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectCommit()

	st, err := repo.Settle(context.Background(), "pay-1", time.Now(), false, func(*users.User) Grant {
		t.Fatal("grant must not run for a settled payment")
		return Grant{}
	})
	require.NoError(t, err)
	assert.Nil(t, st)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SettleRollsBackOnGrantFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE .*payments.*status IN \('pending', 'paid'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	mock.ExpectQuery(`SELECT .* FROM .*users.*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow("u1", "ana@example.com"))
	mock.ExpectExec(`UPDATE .*users.*premium = true`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	st, err := repo.Settle(context.Background(), "pay-1", time.Now(), true, func(*users.User) Grant {
		return Grant{Status: users.SubscriptionActive}
	})
	require.Error(t, err)
	assert.Nil(t, st)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_RecordEvent(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO .*webhook_events.*'stripe'.*'evt_1'.*ON CONFLICT \(provider, event_id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO .*webhook_events.*ON CONFLICT`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	fresh, err := repo.RecordEvent(context.Background(), ProviderStripe, "evt_1", "checkout.session.completed")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = repo.RecordEvent(context.Background(), ProviderStripe, "evt_1", "checkout.session.completed")
	require.NoError(t, err)
	assert.False(t, fresh)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FindByExternalID(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM .*payments.*p.provider = 'abacatepay'.*p.external_id = 'bill_1'.*LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "provider", "billing_type", "amount_cents", "currency", "status", "external_id", "created_at", "updated_at"}).
			AddRow("pay-1", "u1", "abacatepay", "one_time", 990, "brl", "pending", "bill_1", now, now))
	mock.ExpectQuery(`SELECT .* FROM .*payments`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	p, err := repo.FindByExternalID(context.Background(), ProviderAbacatePay, "bill_1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, BillingOneTime, p.BillingType)
	assert.Equal(t, "bill_1", *p.ExternalID)

	p, err = repo.FindByExternalID(context.Background(), ProviderAbacatePay, "missing")
	require.NoError(t, err)
	assert.Nil(t, p)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ForgetEvent(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`DELETE FROM .*webhook_events.*provider = 'stripe'.*event_id = 'evt_1'`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ForgetEvent(context.Background(), ProviderStripe, "evt_1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
