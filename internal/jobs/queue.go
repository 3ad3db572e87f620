// Package jobs provides the PostgreSQL-backed job queue and its worker pool.
//
//   - Idempotent enqueue through a unique idempotency key
//   - Atomic dequeue with FOR UPDATE SKIP LOCKED
//   - Exponential backoff for retries, dead letter after max attempts
//   - Stale job recovery
//   - Queue statistics
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/uptrace/bun"

	"github.com/vaguinhas/vaguinhas/internal/database"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

// QueueConfig contains configuration for the job queue
type QueueConfig struct {
	// MaxAttempts is the default number of attempts before a job is dead-lettered
	MaxAttempts int
	// BaseBackoff is the delay before the first retry
	BaseBackoff time.Duration
	// MaxBackoff caps the retry delay
	MaxBackoff time.Duration
	// BatchSize is the default number of jobs to dequeue at once
	BatchSize int
}

// DefaultQueueConfig returns a QueueConfig with sensible defaults
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxAttempts: 3,
		BaseBackoff: 30 * time.Second,
		MaxBackoff:  time.Hour,
		BatchSize:   10,
	}
}

// EnqueueOptions describes a job to create.
type EnqueueOptions struct {
	Name    string
	Payload any
	// RunAt schedules the job; zero means now (plus Delay).
	RunAt time.Time
	Delay time.Duration
	// MaxAttempts overrides QueueConfig.MaxAttempts when positive.
	MaxAttempts int
	// IdempotencyKey makes the enqueue a no-op when a job with the same key exists.
	IdempotencyKey string
}

// Enqueuer is the part of the queue domain services depend on.
type Enqueuer interface {
	Enqueue(ctx context.Context, opts EnqueueOptions) (*Job, bool, error)
}

// Queue provides job queue operations using PostgreSQL.
type Queue struct {
	db     bun.IDB
	config QueueConfig
	log    *slog.Logger
}

// NewQueue creates a new job queue with the given configuration
func NewQueue(db bun.IDB, config QueueConfig, log *slog.Logger) *Queue {
	def := DefaultQueueConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = def.BaseBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}

	return &Queue{
		db:     db,
		config: config,
		log:    log.With(logger.Scope("jobs.queue")),
	}
}

// Backoff returns the delay before retrying after the given attempt:
// BaseBackoff * 2^(attempt-1), capped at MaxBackoff.
func (q *Queue) Backoff(attempt int) time.Duration {
	return backoff(q.config.BaseBackoff, q.config.MaxBackoff, attempt)
}

func backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

// Enqueue inserts a pending job, inside the transaction carried by ctx if
// any. When IdempotencyKey matches an existing job the existing job is
// returned with created=false.
func (q *Queue) Enqueue(ctx context.Context, opts EnqueueOptions) (*Job, bool, error) {
	if opts.Name == "" {
		return nil, false, fmt.Errorf("enqueue: job name is required")
	}

	maxAttempts := q.config.MaxAttempts
	if opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}

	payload := []byte("{}")
	if opts.Payload != nil {
		b, err := json.Marshal(opts.Payload)
		if err != nil {
			return nil, false, fmt.Errorf("marshal %s payload: %w", opts.Name, err)
		}
		payload = b
	}

	var key *string
	if opts.IdempotencyKey != "" {
		key = &opts.IdempotencyKey
	}
	var runAt *time.Time
	if !opts.RunAt.IsZero() {
		runAt = &opts.RunAt
	}

	job := &Job{}
	err := database.Conn(ctx, q.db).NewRaw(`INSERT INTO queue.jobs (
		name, payload, status, attempts, max_attempts, idempotency_key, run_at
	) VALUES (?, ?, 'pending', 0, ?, ?, COALESCE(?::timestamptz, now() + (? * interval '1 millisecond')))
	ON CONFLICT (idempotency_key) DO NOTHING
	RETURNING *`,
		opts.Name,
		string(payload),
		maxAttempts,
		key,
		runAt,
		opts.Delay.Milliseconds(),
	).Scan(ctx, job)

	if errors.Is(err, sql.ErrNoRows) && key != nil {
		existing, getErr := q.GetByIdempotencyKey(ctx, *key)
		if getErr != nil {
			return nil, false, getErr
		}
		if existing == nil {
			return nil, false, fmt.Errorf("enqueue %s: conflicting job for key %q vanished", opts.Name, *key)
		}
		q.log.Debug("job already enqueued",
			slog.String("job_id", existing.ID),
			slog.String("name", opts.Name),
			slog.String("idempotency_key", *key))
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("enqueue %s: %w", opts.Name, err)
	}

	q.log.Debug("enqueued job",
		slog.String("job_id", job.ID),
		slog.String("name", job.Name),
		slog.Time("run_at", job.RunAt))

	return job, true, nil
}

// Dequeue atomically claims up to batchSize due jobs for processing and
// increments their attempt counter.
//
//	WITH cte AS (
//	  SELECT id FROM queue.jobs
//	  WHERE status='pending' AND run_at <= now()
//	  ORDER BY run_at ASC
//	  FOR UPDATE SKIP LOCKED
//	  LIMIT $1
//	)
//	UPDATE queue.jobs SET status='processing', attempts=attempts+1, started_at=now()
//	FROM cte WHERE queue.jobs.id = cte.id
//	RETURNING *
func (q *Queue) Dequeue(ctx context.Context, batchSize int) ([]*Job, error) {
	if batchSize <= 0 {
		batchSize = q.config.BatchSize
	}

	var jobs []*Job
	err := q.db.NewRaw(`WITH cte AS (
		SELECT id FROM queue.jobs
		WHERE status = 'pending' AND run_at <= now()
		ORDER BY run_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT ?
	)
	UPDATE queue.jobs j
	SET status = 'processing',
		attempts = j.attempts + 1,
		started_at = now(),
		updated_at = now()
	FROM cte WHERE j.id = cte.id
	RETURNING j.*`, batchSize).Scan(ctx, &jobs)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dequeue jobs: %w", err)
	}

	return jobs, nil
}

// Complete marks a job as completed and stores its result.
func (q *Queue) Complete(ctx context.Context, id string, result any) error {
	var resultJSON *string
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal job result: %w", err)
		}
		s := string(b)
		resultJSON = &s
	}

	_, err := q.db.NewRaw(`UPDATE queue.jobs
		SET status = 'completed',
			result = ?::jsonb,
			last_error = NULL,
			completed_at = now(),
			updated_at = now()
		WHERE id = ?`, resultJSON, id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail records a failed attempt. The job is retried with exponential backoff
// unless the error is permanent or the job has used all its attempts, in
// which case it moves to the dead letter state. Returns true when dead-lettered.
func (q *Queue) Fail(ctx context.Context, job *Job, jobErr error) (bool, error) {
	errorMessage := truncateError(jobErr.Error())

	if IsPermanent(jobErr) || job.Attempts >= job.MaxAttempts {
		_, err := q.db.NewRaw(`UPDATE queue.jobs
			SET status = 'dead_letter',
				last_error = ?,
				completed_at = now(),
				updated_at = now()
			WHERE id = ?`, errorMessage, job.ID).Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("mark job dead letter: %w", err)
		}

		q.log.Error("job moved to dead letter queue",
			slog.String("job_id", job.ID),
			slog.String("name", job.Name),
			slog.Int("attempts", job.Attempts),
			slog.Bool("permanent", IsPermanent(jobErr)),
			slog.String("error", errorMessage))
		return true, nil
	}

	delay := q.Backoff(job.Attempts)
	_, err := q.db.NewRaw(`UPDATE queue.jobs
		SET status = 'pending',
			last_error = ?,
			started_at = NULL,
			run_at = now() + (? * interval '1 millisecond'),
			updated_at = now()
		WHERE id = ?`, errorMessage, delay.Milliseconds(), job.ID).Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("requeue failed job: %w", err)
	}

	q.log.Warn("job failed, retrying",
		slog.String("job_id", job.ID),
		slog.String("name", job.Name),
		slog.Int("attempt", job.Attempts),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.Duration("retry_delay", delay),
		slog.String("error", errorMessage))
	return false, nil
}

// Release returns a claimed job to pending without consuming an attempt.
func (q *Queue) Release(ctx context.Context, id string) error {
	_, err := q.db.NewRaw(`UPDATE queue.jobs
		SET status = 'pending',
			attempts = GREATEST(attempts - 1, 0),
			started_at = NULL,
			updated_at = now()
		WHERE id = ? AND status = 'processing'`, id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	return nil
}

// RecoverStale returns jobs stuck in processing for longer than olderThan to
// pending. Jobs that already used their last attempt are dead-lettered instead.
// This happens when a worker dies mid-job.
func (q *Queue) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = 10 * time.Minute
	}

	result, err := q.db.NewRaw(`UPDATE queue.jobs
		SET status = CASE WHEN attempts >= max_attempts THEN 'dead_letter' ELSE 'pending' END,
			last_error = COALESCE(last_error, 'worker stopped before finishing the job'),
			started_at = NULL,
			run_at = now(),
			updated_at = now()
		WHERE status = 'processing'
			AND started_at < now() - (? * interval '1 millisecond')`,
		olderThan.Milliseconds()).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}

	count, _ := result.RowsAffected()
	if count > 0 {
		q.log.Warn("recovered stale jobs",
			slog.Int64("count", count),
			slog.Duration("threshold", olderThan))
	}
	return int(count), nil
}

// RetryDeadLetter resets dead-lettered jobs to pending with a fresh attempt
// budget. An empty name retries every dead job.
func (q *Queue) RetryDeadLetter(ctx context.Context, name string) (int, error) {
	query := q.db.NewUpdate().
		Model((*Job)(nil)).
		Set("status = ?", StatusPending).
		Set("attempts = 0").
		Set("last_error = NULL").
		Set("completed_at = NULL").
		Set("run_at = now()").
		Set("updated_at = now()").
		Where("status = ?", StatusDeadLetter)
	if name != "" {
		query = query.Where("name = ?", name)
	}

	result, err := query.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("retry dead letter jobs: %w", err)
	}
	count, _ := result.RowsAffected()
	q.log.Info("dead letter jobs requeued", slog.Int64("count", count), slog.String("name", name))
	return int(count), nil
}

// Cleanup deletes completed jobs finished before now-olderThan.
func (q *Queue) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	result, err := q.db.NewDelete().
		Model((*Job)(nil)).
		Where("status = ?", StatusCompleted).
		Where("completed_at < now() - (? * interval '1 millisecond')", olderThan.Milliseconds()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("cleanup completed jobs: %w", err)
	}
	count, _ := result.RowsAffected()
	return int(count), nil
}

// Stats returns queue statistics
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := q.db.NewRaw(`SELECT
		COUNT(*) FILTER (WHERE status = 'pending') AS pending,
		COUNT(*) FILTER (WHERE status = 'processing') AS processing,
		COUNT(*) FILTER (WHERE status = 'completed') AS completed,
		COUNT(*) FILTER (WHERE status = 'dead_letter') AS dead_letter
	FROM queue.jobs`).Scan(ctx, &stats.Pending, &stats.Processing, &stats.Completed, &stats.DeadLetter)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return stats, nil
}

// Get retrieves a job by ID. Returns nil if not found.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	job := &Job{}
	err := q.db.NewSelect().Model(job).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetByIdempotencyKey retrieves a job by its idempotency key. Returns nil if not found.
func (q *Queue) GetByIdempotencyKey(ctx context.Context, key string) (*Job, error) {
	job := &Job{}
	err := database.Conn(ctx, q.db).NewSelect().Model(job).Where("idempotency_key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by key: %w", err)
	}
	return job, nil
}

const maxErrorLen = 1000

// truncateError caps an error message at maxErrorLen bytes without splitting
// a UTF-8 sequence.
func truncateError(msg string) string {
	if len(msg) <= maxErrorLen {
		return msg
	}
	n := maxErrorLen
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}
	return msg[:n]
}
