package users

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/vaguinhas/vaguinhas/internal/database"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
	"github.com/vaguinhas/vaguinhas/pkg/pgutils"
)

// ErrEmailTaken is returned when creating a user whose email already exists.
var ErrEmailTaken = apperror.NewConflict("Email already registered")

// Repository handles database operations for users
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new users repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("users.repo")),
	}
}

// conn joins the transaction carried by ctx.
func (r *Repository) conn(ctx context.Context) bun.IDB {
	return database.Conn(ctx, r.db)
}

// FindByID returns the user or nil when it does not exist.
func (r *Repository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.findOne(ctx, "u.id = ?", id)
}

// FindByEmail finds a user by exact (normalized) email match
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, "u.email = ?", NormalizeEmail(email))
}

// FindByConfirmationTokenHash finds the user holding an outstanding confirmation token.
func (r *Repository) FindByConfirmationTokenHash(ctx context.Context, hash string) (*User, error) {
	return r.findOne(ctx, "u.confirmation_token_hash = ?", hash)
}

func (r *Repository) findOne(ctx context.Context, where string, arg any) (*User, error) {
	user := &User{}
	err := r.conn(ctx).NewSelect().Model(user).Where(where, arg).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to find user", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return user, nil
}

// emailConstraint is the unique constraint on core.users.email.
const emailConstraint = "users_email_key"

// Create inserts a user. A duplicate email returns ErrEmailTaken.
func (r *Repository) Create(ctx context.Context, user *User) error {
	user.Email = NormalizeEmail(user.Email)
	if user.Stacks == nil {
		user.Stacks = []string{}
	}

	_, err := r.conn(ctx).NewInsert().Model(user).Returning("*").Exec(ctx)
	if err != nil {
		if pgutils.IsUniqueViolationOn(err, emailConstraint) {
			return ErrEmailTaken
		}
		r.log.Error("failed to create user", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// Update writes the given columns of user and bumps updated_at.
func (r *Repository) Update(ctx context.Context, user *User, columns ...string) error {
	user.UpdatedAt = time.Now()
	columns = append(columns, "updated_at")

	_, err := r.conn(ctx).NewUpdate().Model(user).Column(columns...).WherePK().Exec(ctx)
	if err != nil {
		if pgutils.IsUniqueViolationOn(err, emailConstraint) {
			return ErrEmailTaken
		}
		r.log.Error("failed to update user", slog.String("user_id", user.ID), logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// ListSubscribers returns one page of confirmed, subscribed users ordered by id.
func (r *Repository) ListSubscribers(ctx context.Context, f SubscriberFilter) ([]*User, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 500
	}

	var users []*User
	q := r.conn(ctx).NewSelect().Model(&users).
		Where("u.confirmed = true").
		Where("u.unsubscribed = false").
		OrderExpr("u.id ASC").
		Limit(f.Limit)
	if f.AfterID != "" {
		q = q.Where("u.id > ?", f.AfterID)
	}
	if f.ExcludePremium {
		now := f.Now
		if now.IsZero() {
			now = time.Now()
		}
		q = q.Where("(u.premium = false OR (u.premium_until IS NOT NULL AND u.premium_until <= ?))", now)
	}

	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		r.log.Error("failed to list subscribers", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return users, nil
}

// ListUnconfirmedForReminder returns unconfirmed, subscribed users created in
// [createdAfter, createdBefore] who have not been reminded yet.
func (r *Repository) ListUnconfirmedForReminder(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]*User, error) {
	if limit <= 0 {
		limit = 500
	}

	var users []*User
	err := r.conn(ctx).NewSelect().Model(&users).
		Where("u.confirmed = false").
		Where("u.unsubscribed = false").
		Where("u.reminder_sent_at IS NULL").
		Where("u.created_at >= ?", createdAfter).
		Where("u.created_at <= ?", createdBefore).
		OrderExpr("u.created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		r.log.Error("failed to list users for reminder", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return users, nil
}

// AddFeedback stores a feedback message for the user.
func (r *Repository) AddFeedback(ctx context.Context, userID, message string) (*Feedback, error) {
	fb := &Feedback{UserID: userID, Message: message}
	if _, err := r.conn(ctx).NewInsert().Model(fb).Returning("*").Exec(ctx); err != nil {
		r.log.Error("failed to add feedback", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return fb, nil
}

// AddHiredMessage stores a "got hired" message for the user.
func (r *Repository) AddHiredMessage(ctx context.Context, userID string, company *string, message string) (*HiredMessage, error) {
	hm := &HiredMessage{UserID: userID, Company: company, Message: message}
	if _, err := r.conn(ctx).NewInsert().Model(hm).Returning("*").Exec(ctx); err != nil {
		r.log.Error("failed to add hired message", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return hm, nil
}

// RevokePremium ends premium access immediately.
func (r *Repository) RevokePremium(ctx context.Context, userID string) error {
	_, err := r.conn(ctx).NewUpdate().
		Model((*User)(nil)).
		Set("premium = false").
		Set("premium_until = NULL").
		Set("subscription_status = ?", SubscriptionCanceled).
		Set("updated_at = now()").
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to revoke premium", slog.String("user_id", userID), logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// SetStripeCustomer records the Stripe customer id for the user.
func (r *Repository) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	_, err := r.conn(ctx).NewUpdate().
		Model((*User)(nil)).
		Set("stripe_customer_id = ?", customerID).
		Set("updated_at = now()").
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// UpsertOAuth creates or links a user signing in through an OAuth provider.
// The provider has verified the email, so the user is confirmed. A password
// set on a still unconfirmed account was never proven to belong to the
// mailbox owner and is dropped.
func (r *Repository) UpsertOAuth(ctx context.Context, email, name, provider, subject string) (*User, error) {
	var namePtr *string
	if name != "" {
		namePtr = &name
	}

	user := &User{}
	err := r.conn(ctx).NewRaw(`INSERT INTO core.users AS u (email, name, confirmed, confirmed_at, oauth_provider, oauth_subject)
	VALUES (?, ?, true, now(), ?, ?)
	ON CONFLICT (email) DO UPDATE SET
		name = COALESCE(u.name, EXCLUDED.name),
		password_hash = CASE WHEN u.confirmed THEN u.password_hash END,
		confirmed = true,
		confirmed_at = COALESCE(u.confirmed_at, now()),
		confirmation_token_hash = NULL,
		confirmation_expires_at = NULL,
		oauth_provider = COALESCE(u.oauth_provider, EXCLUDED.oauth_provider),
		oauth_subject = COALESCE(u.oauth_subject, EXCLUDED.oauth_subject),
		updated_at = now()
	RETURNING *`, NormalizeEmail(email), namePtr, provider, subject).Scan(ctx, user)
	if err != nil {
		r.log.Error("failed to upsert oauth user", slog.String("provider", provider), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return user, nil
}
