// Package cache provides the shared Redis client.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

var Module = fx.Module("cache",
	fx.Provide(NewRedis),
)

// NewRedis connects to Redis. It returns a nil client when Redis is not
// configured; consumers fall back to in-process behaviour.
func NewRedis(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (redis.UniversalClient, error) {
	log = log.With(logger.Scope("redis"))

	if !cfg.Redis.IsConfigured() {
		log.Info("redis not configured")
		return nil, nil
	}

	opts, err := Options(cfg.Redis)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info("redis connected", slog.String("addr", opts.Addr), slog.Int("db", opts.DB))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing redis client")
			return client.Close()
		},
	})

	return client, nil
}

// Options builds client options from REDIS_URL, or from REDIS_ADDR and friends.
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}
