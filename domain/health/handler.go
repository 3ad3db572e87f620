package health

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/internal/version"
)

const checkTimeout = 5 * time.Second

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDisabled  = "disabled"
)

// Pinger checks connectivity to a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Handler serves liveness, readiness and health endpoints.
type Handler struct {
	db      Pinger
	redis   Pinger
	cfg     *config.Config
	started time.Time
}

// NewHandler creates a health handler. redis is nil when Redis is not
// configured and is then reported as disabled.
func NewHandler(db Pinger, redis Pinger, cfg *config.Config) *Handler {
	return &Handler{db: db, redis: redis, cfg: cfg, started: time.Now()}
}

type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
}

type Check struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs,omitempty"`
	Message   string `json:"message,omitempty"`
}

// runChecks pings every configured dependency in parallel.
func (h *Handler) runChecks(ctx context.Context) map[string]Check {
	pingers := map[string]Pinger{"database": h.db, "redis": h.redis}

	var mu sync.Mutex
	out := make(map[string]Check, len(pingers))
	var g errgroup.Group
	for name, p := range pingers {
		if p == nil {
			out[name] = Check{Status: statusDisabled}
			continue
		}
		name, p := name, p
		g.Go(func() error {
			start := time.Now()
			err := p.Ping(ctx)
			c := Check{Status: statusHealthy, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				c.Status, c.Message = statusUnhealthy, err.Error()
			}
			mu.Lock()
			out[name] = c
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Health reports every dependency and answers 503 when any is down.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), checkTimeout)
	defer cancel()

	checks := h.runChecks(ctx)
	status, code := statusHealthy, http.StatusOK
	for _, ch := range checks {
		if ch.Status == statusUnhealthy {
			status, code = statusUnhealthy, http.StatusServiceUnavailable
			break
		}
	}

	return c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    checks,
	})
}

// Healthz is a liveness probe that touches nothing.
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Ready is ready once Postgres answers. Redis is optional for serving.
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), checkTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"message": "Database connection failed",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// Debug dumps runtime and host information. It is not served in production.
func (h *Handler) Debug(c echo.Context) error {
	if h.cfg.IsProduction() {
		return echo.ErrNotFound
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	const mb = 1 << 20

	return c.JSON(http.StatusOK, map[string]any{
		"environment": h.cfg.Environment,
		"version":     version.Info(),
		"goroutines":  runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc_mb": ms.Alloc / mb,
			"sys_mb":   ms.Sys / mb,
			"num_gc":   ms.NumGC,
		},
		"host": hostStats(c.Request().Context()),
	})
}
