package jobpostings

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

// Repository handles database operations for job postings
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new job postings repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("jobpostings.repo")),
	}
}

// Create inserts a posting.
func (r *Repository) Create(ctx context.Context, p *JobPosting) error {
	_, err := r.db.NewInsert().Model(p).Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to create job posting", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// FindByID returns the posting or nil when it does not exist.
func (r *Repository) FindByID(ctx context.Context, id string) (*JobPosting, error) {
	p := &JobPosting{}
	err := r.db.NewSelect().Model(p).Where("jp.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return p, nil
}

// List returns one page of postings matching f, newest first, and the total count.
func (r *Repository) List(ctx context.Context, f Filter) ([]*JobPosting, int, error) {
	var out []*JobPosting
	q := r.db.NewSelect().Model(&out)
	if f.Status != "" {
		q = q.Where("jp.status = ?", f.Status)
	}
	if f.Stack != "" {
		q = q.Where("jp.stack = ?", f.Stack)
	}
	if f.Seniority != "" {
		q = q.Where("jp.seniority_level = ?", f.Seniority)
	}
	total, err := q.OrderExpr("jp.created_at DESC, jp.id DESC").
		Offset(f.Offset).
		Limit(f.Limit).
		ScanAndCount(ctx)
	if err != nil {
		r.log.Error("failed to list job postings", logger.Error(err))
		return nil, 0, apperror.ErrDatabase.WithInternal(err)
	}
	return out, total, nil
}

// Review moves a pending posting to status. It returns nil when the posting
// is not pending any more, so concurrent reviews cannot both win.
func (r *Repository) Review(ctx context.Context, id string, status Status, reason *string, at time.Time) (*JobPosting, error) {
	p := &JobPosting{}
	err := r.db.NewUpdate().
		Model(p).
		Set("status = ?", status).
		Set("rejection_reason = ?", reason).
		Set("reviewed_at = ?", at).
		Set("updated_at = ?", at).
		Where("jp.id = ?", id).
		Where("jp.status = ?", StatusPending).
		Returning("*").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to review job posting", slog.String("id", id), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	if p.ID == "" {
		return nil, nil
	}
	return p, nil
}

// Delete removes a posting and reports whether it existed.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.NewDelete().Model((*JobPosting)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListApprovedSince returns postings approved after since whose stack is in
// stacks. An empty seniority matches every level.
func (r *Repository) ListApprovedSince(ctx context.Context, since time.Time, stacks []string, seniority string, limit int) ([]*JobPosting, error) {
	var out []*JobPosting
	if len(stacks) == 0 {
		return out, nil
	}
	q := r.db.NewSelect().Model(&out).
		Where("jp.status = ?", StatusApproved).
		Where("jp.reviewed_at > ?", since).
		Where("jp.stack = ANY(?)", pq.Array(stacks))
	if seniority != "" {
		q = q.Where("jp.seniority_level = ?", seniority)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.OrderExpr("jp.reviewed_at DESC").Scan(ctx); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return out, nil
}
