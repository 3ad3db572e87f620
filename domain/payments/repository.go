package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/vaguinhas/vaguinhas/domain/users"
	"github.com/vaguinhas/vaguinhas/internal/database"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

// Repository handles database operations for payments and webhook events
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new payments repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("payments.repo")),
	}
}

// Create inserts a payment.
func (r *Repository) Create(ctx context.Context, p *Payment) error {
	if _, err := r.db.NewInsert().Model(p).Returning("*").Exec(ctx); err != nil {
		r.log.Error("failed to create payment", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// FindByID returns the payment or nil.
func (r *Repository) FindByID(ctx context.Context, id string) (*Payment, error) {
	return r.findOne(ctx, r.db.NewSelect().Where("p.id = ?", id))
}

// FindByExternalID returns the payment created for a provider session or billing.
func (r *Repository) FindByExternalID(ctx context.Context, provider, externalID string) (*Payment, error) {
	return r.findOne(ctx, r.db.NewSelect().
		Where("p.provider = ?", provider).
		Where("p.external_id = ?", externalID))
}

func (r *Repository) findOne(ctx context.Context, q *bun.SelectQuery) (*Payment, error) {
	p := &Payment{}
	if err := q.Model(p).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return p, nil
}

// SetCheckout stores the provider's session id and URL.
func (r *Repository) SetCheckout(ctx context.Context, id, externalID, url string) error {
	_, err := r.db.NewUpdate().
		Model((*Payment)(nil)).
		Set("external_id = ?", externalID).
		Set("checkout_url = ?", url).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// Settle moves a payment to paid and applies grant to its owner in one
// transaction, so a payment never settles without its premium or twice with
// it. Only pending payments settle unless renew is set, which also accepts
// one already paid. A nil Settlement means nothing changed.
func (r *Repository) Settle(ctx context.Context, id string, at time.Time, renew bool, grant GrantFunc) (*Settlement, error) {
	from := []Status{StatusPending}
	if renew {
		from = append(from, StatusPaid)
	}

	var out *Settlement
	err := database.InTx(ctx, r.db, func(tx bun.IDB) error {
		var owners []string
		err := tx.NewUpdate().
			Model((*Payment)(nil)).
			Set("status = ?", StatusPaid).
			Set("paid_at = ?", at).
			Set("updated_at = ?", at).
			Where("id = ?", id).
			Where("status IN (?)", bun.In(from)).
			Returning("user_id").
			Scan(ctx, &owners)
		if err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		if len(owners) == 0 {
			return nil
		}

		user := &users.User{}
		err = tx.NewSelect().Model(user).Where("u.id = ?", owners[0]).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			out = &Settlement{}
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock owner: %w", err)
		}

		g := grant(user)
		_, err = tx.NewUpdate().
			Model((*users.User)(nil)).
			Set("premium = true").
			Set("premium_until = ?", g.Until).
			Set("subscription_status = ?", g.Status).
			Set("updated_at = ?", at).
			Where("id = ?", user.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("grant premium: %w", err)
		}
		user.Premium = true
		user.PremiumUntil = g.Until
		user.SubscriptionStatus = &g.Status
		out = &Settlement{User: user, Grant: g}
		return nil
	})
	if err != nil {
		r.log.Error("failed to settle payment", slog.String("payment_id", id), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return out, nil
}

// SetStatus sets the status of a payment.
func (r *Repository) SetStatus(ctx context.Context, id string, status Status) error {
	_, err := r.db.NewUpdate().
		Model((*Payment)(nil)).
		Set("status = ?", status).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// RecordEvent stores a webhook event id. It reports false when the event was
// already recorded.
func (r *Repository) RecordEvent(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	res, err := r.db.NewInsert().
		Model(&WebhookEvent{Provider: provider, EventID: eventID, Type: eventType}).
		On("CONFLICT (provider, event_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to record webhook event", slog.String("provider", provider), logger.Error(err))
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ForgetEvent removes a recorded event so the provider's retry is processed.
func (r *Repository) ForgetEvent(ctx context.Context, provider, eventID string) error {
	_, err := r.db.NewDelete().
		Model((*WebhookEvent)(nil)).
		Where("provider = ?", provider).
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}
