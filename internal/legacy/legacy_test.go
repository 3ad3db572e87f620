package legacy

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
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vaguinhas/vaguinhas/domain/jobpostings"
	"github.com/vaguinhas/vaguinhas/domain/payments"
	"github.com/vaguinhas/vaguinhas/domain/users"
	"github.com/vaguinhas/vaguinhas/pkg/auth"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	users    []*UserDoc
	postings []*JobPostingDoc
	payments []*PaymentDoc
	err      error
}

func (f *fakeSource) EachUser(_ context.Context, fn func(*UserDoc) error) error {
	if f.err != nil {
		return f.err
	}
	for _, d := range f.users {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) EachJobPosting(_ context.Context, fn func(*JobPostingDoc) error) error {
	for _, d := range f.postings {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) EachPayment(_ context.Context, fn func(*PaymentDoc) error) error {
	for _, d := range f.payments {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMapUser(t *testing.T) {
	id := bson.NewObjectID()
	expires := now.Add(24 * time.Hour)
	doc := &UserDoc{
		ID:                       id,
		Email:                    "  Ana@Example.COM ",
		Name:                     "Ana",
		SeniorityLevel:           "Junior",
		Stacks:                   []string{"Backend", "backend", " dados "},
		ConfirmationToken:        "raw-token",
		ConfirmationTokenExpires: &expires,
		Provider:                 "google",
		ProviderAccountID:        "g-123",
		IsPremium:                true,
		Feedback: []MessageDoc{
			{Message: "adorei"},
			{Message: "   "},
		},
		HiredMessages: []MessageDoc{{Message: "fui contratada", Company: "Acme"}},
	}

	rows, ok := MapUser(doc, now)
	require.True(t, ok)

	u := rows.User
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, "junior", *u.SeniorityLevel)
	assert.Equal(t, []string{"backend", "dados"}, []string(u.Stacks))
	assert.False(t, u.Confirmed)
	assert.Equal(t, auth.HashToken("raw-token"), *u.ConfirmationTokenHash)
	assert.Equal(t, "google", *u.OAuthProvider)
	assert.Equal(t, "g-123", *u.OAuthSubject)
	assert.True(t, u.Premium)
	assert.Nil(t, u.PremiumUntil)
	assert.Equal(t, users.SubscriptionActive, *u.SubscriptionStatus)
	assert.Equal(t, now, u.CreatedAt)

	require.Len(t, rows.Feedback, 1)
	assert.Equal(t, u.ID, rows.Feedback[0].UserID)
	require.Len(t, rows.Hired, 1)
	assert.Equal(t, "Acme", *rows.Hired[0].Company)

	again, _ := MapUser(doc, now)
	assert.Equal(t, u.ID, again.User.ID, "ids are derived from the ObjectID")
	assert.Equal(t, rows.Feedback[0].ID, again.Feedback[0].ID)
}

func TestMapUser_Invalid(t *testing.T) {
	_, ok := MapUser(&UserDoc{ID: bson.NewObjectID(), Email: "not-an-email"}, now)
	assert.False(t, ok)

	_, ok = MapUser(&UserDoc{Email: "a@b.com"}, now)
	assert.False(t, ok)
}

func TestMapJobPosting(t *testing.T) {
	doc := &JobPostingDoc{
		ID:             bson.NewObjectID(),
		LinkVaga:       "https://example.com/vaga",
		NomeEmpresa:    "Acme",
		Cargo:          "Dev Backend",
		Stack:          "Backend",
		SeniorityLevel: "Pleno",
		Email:          "RH@Acme.com",
		Logo:           "https://cdn.example.com/logo.png",
		Status:         "approved",
		UpdatedAt:      now.Add(-time.Hour),
	}

	p, ok := MapJobPosting(doc, now)
	require.True(t, ok)
	assert.Equal(t, jobpostings.StatusApproved, p.Status)
	assert.Equal(t, "backend", p.Stack)
	assert.Equal(t, "pleno", p.SeniorityLevel)
	assert.Equal(t, "rh@acme.com", p.ContactEmail)
	assert.Nil(t, p.LogoKey)
	require.NotNil(t, p.ReviewedAt)
	assert.Equal(t, now.Add(-time.Hour), *p.ReviewedAt)

	doc.Logo = "logos/acme.png"
	doc.Status = ""
	p, _ = MapJobPosting(doc, now)
	assert.Equal(t, "logos/acme.png", *p.LogoKey)
	assert.Equal(t, jobpostings.StatusPending, p.Status)
	assert.Nil(t, p.ReviewedAt)
}

func TestMapPayment(t *testing.T) {
	userID := bson.NewObjectID()
	tests := []struct {
		name    string
		doc     PaymentDoc
		ok      bool
		billing payments.BillingType
		status  payments.Status
		cents   int64
	}{
		{
			name:    "stripe subscription",
			doc:     PaymentDoc{Provider: "Stripe", Type: "subscription", Amount: 9.9, Status: "completed"},
			ok:      true,
			billing: payments.BillingMonthly,
			status:  payments.StatusPaid,
			cents:   990,
		},
		{
			name:    "abacate one time",
			doc:     PaymentDoc{Provider: "abacate_pay", Type: "one_time", Amount: 19.9, Status: "PENDING"},
			ok:      true,
			billing: payments.BillingOneTime,
			status:  payments.StatusPending,
			cents:   1990,
		},
		{name: "unknown provider", doc: PaymentDoc{Provider: "paypal", Amount: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := tt.doc
			doc.ID = bson.NewObjectID()
			doc.UserID = userID

			p, ok := MapPayment(&doc, "brl", now)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.billing, p.BillingType)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, tt.cents, p.AmountCents)
			assert.Equal(t, "brl", p.Currency)
			assert.Equal(t, rowID("users", userID), p.UserID)
			if p.Status == payments.StatusPaid {
				assert.NotNil(t, p.PaidAt)
			}
		})
	}
}

func newImporter(t *testing.T, src Source, opts Options) (*Importer, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	im := NewImporter(src, db, opts, testLogger())
	im.now = func() time.Time { return now }
	return im, mock
}

func sampleSource() (*fakeSource, bson.ObjectID) {
	userID := bson.NewObjectID()
	return &fakeSource{
		users: []*UserDoc{
			{ID: userID, Email: "ana@example.com", Confirmed: true, Feedback: []MessageDoc{{Message: "ótimo"}}},
			{ID: bson.NewObjectID(), Email: "ANA@example.com"},
			{ID: bson.NewObjectID(), Email: ""},
		},
		postings: []*JobPostingDoc{
			{ID: bson.NewObjectID(), LinkVaga: "https://x.dev/1", NomeEmpresa: "X", Cargo: "Dev", Stack: "backend", SeniorityLevel: "junior", Email: "x@x.dev"},
		},
		payments: []*PaymentDoc{
			{ID: bson.NewObjectID(), UserID: userID, Provider: "stripe", Amount: 9.9, Status: "paid"},
			{ID: bson.NewObjectID(), UserID: bson.NewObjectID(), Provider: "stripe", Amount: 9.9, Status: "paid"},
		},
	}, userID
}

func TestImporter_DryRun(t *testing.T) {
	src, _ := sampleSource()
	im, mock := newImporter(t, src, Options{DryRun: true})

	report, err := im.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, Counts{Read: 3, Inserted: 1, Skipped: 2}, report.Users)
	assert.Equal(t, Counts{Read: 1, Inserted: 1}, report.Feedback)
	assert.Equal(t, Counts{Read: 1, Inserted: 1}, report.JobPostings)
	assert.Equal(t, Counts{Read: 2, Inserted: 2}, report.Payments)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImporter_Run(t *testing.T) {
	src, userID := sampleSource()
	im, mock := newImporter(t, src, Options{})
	id := rowID("users", userID)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "core"."users".*'ana@example.com'.*ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .*"id".* FROM "core"."users".*IN \('` + id + `'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))
	mock.ExpectExec(`INSERT INTO "core"."user_feedback".*ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO "core"."job_postings".*ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .*"id".* FROM "core"."users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))
	mock.ExpectExec(`INSERT INTO "core"."payments".*ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	report, err := im.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Counts{Read: 3, Inserted: 1, Skipped: 2}, report.Users)
	assert.Equal(t, Counts{Read: 1, Inserted: 1}, report.Feedback)
	assert.Equal(t, Counts{Read: 1, Skipped: 1}, report.JobPostings, "an existing posting is skipped on re-run")
	assert.Equal(t, Counts{Read: 2, Inserted: 1, Skipped: 1}, report.Payments, "payments of unknown users are skipped")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImporter_SourceError(t *testing.T) {
	im, _ := newImporter(t, &fakeSource{err: errors.New("cursor closed")}, Options{})

	_, err := im.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import users")
}
