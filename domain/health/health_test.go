package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaguinhas/vaguinhas/domain/scheduler"
	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/internal/jobs"
)

func ok() Pinger { return PingFunc(func(context.Context) error { return nil }) }

func failing() Pinger {
	return PingFunc(func(context.Context) error { return errors.New("connection refused") })
}

func get(t *testing.T, handler echo.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), rec)
	require.NoError(t, handler(c))
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		db       Pinger
		redis    Pinger
		wantCode int
		redisSt  string
	}{
		{name: "all healthy", db: ok(), redis: ok(), wantCode: http.StatusOK, redisSt: "healthy"},
		{name: "redis disabled", db: ok(), wantCode: http.StatusOK, redisSt: "disabled"},
		{name: "redis down", db: ok(), redis: failing(), wantCode: http.StatusServiceUnavailable, redisSt: "unhealthy"},
		{name: "database down", db: failing(), wantCode: http.StatusServiceUnavailable, redisSt: "disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.db, tt.redis, &config.Config{})
			rec := get(t, h.Health, "/health")
			assert.Equal(t, tt.wantCode, rec.Code)

			var res HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, tt.redisSt, res.Checks["redis"].Status)
		})
	}
}

func TestReady(t *testing.T) {
	rec := get(t, NewHandler(ok(), nil, &config.Config{}).Ready, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, NewHandler(failing(), nil, &config.Config{}).Ready, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDebug_HiddenInProduction(t *testing.T) {
	h := NewHandler(ok(), nil, &config.Config{Environment: "production"})
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/debug", nil), httptest.NewRecorder())

	var he *echo.HTTPError
	require.ErrorAs(t, h.Debug(c), &he)
	assert.Equal(t, http.StatusNotFound, he.Code)
}

func TestDebug_HostStats(t *testing.T) {
	origLoad, origMem := getLoadAvg, getMemStats
	t.Cleanup(func() { getLoadAvg, getMemStats = origLoad, origMem })

	getLoadAvg = func(context.Context) (*load.AvgStat, error) {
		return &load.AvgStat{Load1: 0.5, Load5: 0.25, Load15: 0.1}, nil
	}
	getMemStats = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return nil, errors.New("unsupported platform")
	}

	h := NewHandler(ok(), nil, &config.Config{Environment: "local"})
	rec := get(t, h.Debug, "/debug")
	assert.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Host HostStats `json:"host"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Host.Load1)
	assert.Equal(t, 0.5, *res.Host.Load1)
	assert.Zero(t, res.Host.MemTotalMB)
}

type fakeQueue struct{}

func (fakeQueue) Stats(context.Context) (*jobs.Stats, error) {
	return &jobs.Stats{Pending: 4, DeadLetter: 1}, nil
}

type fakeWorker struct{}

func (fakeWorker) Metrics() jobs.WorkerMetrics { return jobs.WorkerMetrics{Processed: 10, Succeeded: 9} }
func (fakeWorker) IsRunning() bool             { return true }

func TestJobMetrics(t *testing.T) {
	s := scheduler.NewScheduler(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	m := NewMetricsHandler(fakeQueue{}, fakeWorker{}, s)

	rec := get(t, m.JobMetrics, "/api/metrics/jobs")
	assert.Equal(t, http.StatusOK, rec.Code)

	var res JobMetricsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(4), res.Queue.Pending)
	assert.Equal(t, int64(9), res.Worker.Succeeded)
	assert.True(t, res.WorkerRunning)
}
