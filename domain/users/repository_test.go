package users

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/vaguinhas/vaguinhas/pkg/apperror"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

var userColumns = []string{"id", "email", "stacks", "confirmed", "unsubscribed", "premium", "created_at", "updated_at"}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ana@example.com", NormalizeEmail("  Ana@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestUserHelpers(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.False(t, (&User{}).HasPremium(now))
	assert.True(t, (&User{Premium: true}).HasPremium(now))
	assert.True(t, (&User{Premium: true, PremiumUntil: &future}).HasPremium(now))
	assert.False(t, (&User{Premium: true, PremiumUntil: &past}).HasPremium(now))

	assert.True(t, (&User{Confirmed: true}).IsActiveSubscriber())
	assert.False(t, (&User{Confirmed: true, Unsubscribed: true}).IsActiveSubscriber())
	assert.False(t, (&User{}).IsActiveSubscriber())

	name := "Ana"
	assert.Equal(t, "Ana", (&User{Name: &name}).DisplayName())
	assert.Equal(t, "", (&User{}).DisplayName())
}

func TestFindByEmailNormalizes(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`u.email = 'ana@example.com'`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u1", "ana@example.com", "{backend,devops}", true, false, false, now, now))

	user, err := repo.FindByEmail(context.Background(), " ANA@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, pq.StringArray{"backend", "devops"}, user.Stacks)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT`).WillReturnRows(sqlmock.NewRows(userColumns))

	user, err := repo.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestFindDatabaseError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("connection reset"))

	_, err := repo.FindByID(context.Background(), "u1")
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "database_error", appErr.Code)
}

func TestCreateDuplicateEmail(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`INSERT INTO .*users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	err := repo.Create(context.Background(), &User{Email: "Ana@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestListSubscribers(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`u.confirmed = true.*u.unsubscribed = false.*u.id > 'u1'.*premium = false`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u2", "b@example.com", "{}", true, false, false, now, now).
			AddRow("u3", "c@example.com", "{qa}", true, false, false, now, now))

	users, err := repo.ListSubscribers(context.Background(), SubscriberFilter{AfterID: "u1", Limit: 2, ExcludePremium: true, Now: now})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u3", users[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUnconfirmedForReminder(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`u.confirmed = false.*u.reminder_sent_at IS NULL`).
		WillReturnRows(sqlmock.NewRows(userColumns))

	users, err := repo.ListUnconfirmedForReminder(context.Background(), time.Now().Add(-7*24*time.Hour), time.Now().Add(-24*time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, users)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokePremium(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE .*users.*premium = false.*premium_until = NULL.*subscription_status = 'canceled'`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RevokePremium(context.Background(), "u1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertOAuth(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`ON CONFLICT \(email\) DO UPDATE SET .*password_hash = CASE WHEN u.confirmed THEN u.password_hash END`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u9", "ana@example.com", "{}", true, false, false, now, now))

	user, err := repo.UpsertOAuth(context.Background(), "Ana@Example.com", "Ana", "github", "12345")
	require.NoError(t, err)
	assert.True(t, user.Confirmed)
	require.NoError(t, mock.ExpectationsWereMet())
}
