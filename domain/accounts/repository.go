package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

// Repository stores magic links.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new magic link repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("accounts.repo")),
	}
}

// CreateMagicLink inserts a link.
func (r *Repository) CreateMagicLink(ctx context.Context, link *MagicLink) error {
	_, err := r.db.NewInsert().Model(link).Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to create magic link", slog.String("user_id", link.UserID), logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// ConsumeMagicLink marks the link with hash as used and returns it. Only one
// caller can consume a link; used, expired and unknown links return nil.
func (r *Repository) ConsumeMagicLink(ctx context.Context, hash string, now time.Time) (*MagicLink, error) {
	link := &MagicLink{}
	err := r.db.NewRaw(`UPDATE core.magic_links
	SET used = true, used_at = ?
	WHERE token_hash = ? AND used = false AND expires_at > ?
	RETURNING *`, now, hash, now).Scan(ctx, link)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to consume magic link", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return link, nil
}

// DeleteStaleMagicLinks removes used links and links that expired before now.
func (r *Repository) DeleteStaleMagicLinks(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*MagicLink)(nil)).
		WhereOr("used = true").
		WhereOr("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
