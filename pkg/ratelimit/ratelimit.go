// Package ratelimit throttles requests per key. The Redis limiter keeps a
// sliding window shared by every instance; the local limiter is a per-process
// token bucket used when Redis is not configured.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

var Module = fx.Module("ratelimit",
	fx.Provide(NewService),
)

// Policy allows Limit events per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

func (p Policy) normalized() Policy {
	if p.Limit <= 0 {
		p.Limit = 1
	}
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	return p
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter records one event for key and reports whether it fits the policy.
type Limiter interface {
	Allow(ctx context.Context, key string, p Policy) (Decision, error)
}

var (
	rejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaguinhas_rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter.",
	}, []string{"route"})
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaguinhas_rate_limit_errors_total",
		Help: "Rate limiter backend errors.",
	}, []string{"route"})
)

// Service applies named policies through a Limiter.
type Service struct {
	limiter  Limiter
	log      *slog.Logger
	enabled  bool
	failOpen bool
}

// NewService picks the Redis limiter when a client is available.
func NewService(cfg *config.Config, client redis.UniversalClient, log *slog.Logger) *Service {
	log = log.With(logger.Scope("ratelimit"))

	var l Limiter
	if client != nil {
		l = NewRedisLimiter(client, "rl")
		log.Info("using redis sliding-window rate limiter")
	} else {
		l = NewLocalLimiter()
		log.Warn("redis not configured, using in-process rate limiter")
	}
	return New(l, log, cfg.RateLimit.Enabled, cfg.RateLimit.FailOpen)
}

// New wraps an explicit limiter.
func New(l Limiter, log *slog.Logger, enabled, failOpen bool) *Service {
	return &Service{limiter: l, log: log, enabled: enabled, failOpen: failOpen}
}

// Allow checks key against p under the route name. Backend errors are
// reported as allowed when the service fails open.
func (s *Service) Allow(ctx context.Context, route, key string, p Policy) (Decision, error) {
	p = p.normalized()
	if !s.enabled {
		return Decision{Allowed: true, Remaining: p.Limit}, nil
	}

	d, err := s.limiter.Allow(ctx, route+":"+key, p)
	if err != nil {
		errorsTotal.WithLabelValues(route).Inc()
		s.log.Warn("rate limiter unavailable",
			slog.String("route", route),
			logger.Error(err),
		)
		if s.failOpen {
			return Decision{Allowed: true, Remaining: p.Limit}, nil
		}
		return Decision{}, err
	}
	if !d.Allowed {
		rejectionsTotal.WithLabelValues(route).Inc()
	}
	return d, nil
}
