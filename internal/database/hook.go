package database

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/uptrace/bun"

	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

var queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "vaguinhas_db_query_duration_seconds",
	Help:    "Database query duration by operation and outcome.",
	Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
}, []string{"operation", "outcome"})

// queryHook records every query in queryDuration. Failures other than
// sql.ErrNoRows are logged at error, queries over slow at warn, and the rest
// at debug when verbose is set.
type queryHook struct {
	log     *slog.Logger
	verbose bool
	slow    time.Duration
}

func newQueryHook(log *slog.Logger, verbose bool, slow time.Duration) *queryHook {
	return &queryHook{log: log, verbose: verbose, slow: slow}
}

func (h *queryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	took := time.Since(event.StartTime)
	failed := event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows)

	outcome := "ok"
	if failed {
		outcome = "error"
	}
	queryDuration.WithLabelValues(event.Operation(), outcome).Observe(took.Seconds())

	attrs := []any{slog.String("query", event.Query), slog.Duration("took", took)}
	switch {
	case failed:
		h.log.ErrorContext(ctx, "query failed", append(attrs, logger.Error(event.Err))...)
	case took > h.slow:
		h.log.WarnContext(ctx, "slow query", attrs...)
	case h.verbose:
		h.log.DebugContext(ctx, "query", attrs...)
	}
}
