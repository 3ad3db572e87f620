package health

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/domain/scheduler"
	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/internal/jobs"
)

// Module provides the health, readiness and metrics endpoints
var Module = fx.Module("health",
	fx.Provide(
		newHandler,
		func(q *jobs.Queue, w *jobs.Worker, s *scheduler.Scheduler) *MetricsHandler {
			return NewMetricsHandler(q, w, s)
		},
	),
	fx.Invoke(RegisterRoutes),
)

func newHandler(pool *pgxpool.Pool, rdb redis.UniversalClient, cfg *config.Config) *Handler {
	var redisCheck Pinger
	if rdb != nil {
		redisCheck = redisPinger{rdb}
	}
	return NewHandler(pool, redisCheck, cfg)
}

type redisPinger struct {
	client redis.UniversalClient
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
