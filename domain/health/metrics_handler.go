package health

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vaguinhas/vaguinhas/domain/scheduler"
	"github.com/vaguinhas/vaguinhas/internal/jobs"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
)

// QueueStats reports job counts by status.
type QueueStats interface {
	Stats(ctx context.Context) (*jobs.Stats, error)
}

// WorkerStatus reports what the local worker has processed.
type WorkerStatus interface {
	Metrics() jobs.WorkerMetrics
	IsRunning() bool
}

// TaskLister reports scheduled tasks.
type TaskLister interface {
	GetTaskInfo() []scheduler.TaskInfo
	IsRunning() bool
}

// MetricsHandler handles job and scheduler metrics requests
type MetricsHandler struct {
	queue     QueueStats
	worker    WorkerStatus
	scheduler TaskLister
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(queue QueueStats, worker WorkerStatus, scheduler TaskLister) *MetricsHandler {
	return &MetricsHandler{queue: queue, worker: worker, scheduler: scheduler}
}

// JobMetricsResponse combines queue counts with this instance's worker counters
type JobMetricsResponse struct {
	Queue         *jobs.Stats        `json:"queue"`
	Worker        jobs.WorkerMetrics `json:"worker"`
	WorkerRunning bool               `json:"workerRunning"`
	Timestamp     string             `json:"timestamp"`
}

// JobMetrics returns job queue metrics
// GET /api/metrics/jobs
func (h *MetricsHandler) JobMetrics(c echo.Context) error {
	stats, err := h.queue.Stats(c.Request().Context())
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	return c.JSON(http.StatusOK, JobMetricsResponse{
		Queue:         stats,
		Worker:        h.worker.Metrics(),
		WorkerRunning: h.worker.IsRunning(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

// SchedulerMetrics returns the scheduled tasks and their next runs
// GET /api/metrics/scheduler
func (h *MetricsHandler) SchedulerMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"running": h.scheduler.IsRunning(),
		"tasks":   h.scheduler.GetTaskInfo(),
	})
}
