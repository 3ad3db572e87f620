package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vaguinhas/vaguinhas/pkg/logger"
	"github.com/vaguinhas/vaguinhas/pkg/tracing"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaguinhas_jobs_processed_total",
		Help: "Jobs processed by the worker, by job name and outcome.",
	}, []string{"name", "outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaguinhas_job_duration_seconds",
		Help:    "Job handler duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name"})

	jobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vaguinhas_jobs_in_flight",
		Help: "Jobs currently being handled.",
	})
)

// Store is the queue surface the worker needs.
type Store interface {
	Dequeue(ctx context.Context, batchSize int) ([]*Job, error)
	Complete(ctx context.Context, id string, result any) error
	Fail(ctx context.Context, job *Job, jobErr error) (bool, error)
	Release(ctx context.Context, id string) error
	RecoverStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// WorkerConfig contains configuration for a job worker
type WorkerConfig struct {
	// PollInterval is how often to poll for new jobs when idle
	PollInterval time.Duration
	// Concurrency is the maximum number of jobs handled at once
	Concurrency int
	// RatePerSecond limits how many jobs start per second. Zero means unlimited.
	RatePerSecond float64
	// JobTimeout bounds a single handler invocation
	JobTimeout time.Duration
	// StaleAfter is passed to RecoverStale on start
	StaleAfter time.Duration
	// RecoverStaleOnStart recovers jobs left in processing by a previous process
	RecoverStaleOnStart bool
}

// DefaultWorkerConfig returns a WorkerConfig with sensible defaults
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:        2 * time.Second,
		Concurrency:         5,
		RatePerSecond:       20,
		JobTimeout:          5 * time.Minute,
		StaleAfter:          10 * time.Minute,
		RecoverStaleOnStart: true,
	}
}

// WorkerMetrics tracks worker processing statistics
type WorkerMetrics struct {
	Processed  int64 `json:"processed"`
	Succeeded  int64 `json:"succeeded"`
	Retried    int64 `json:"retried"`
	DeadLetter int64 `json:"deadLetter"`
}

// Worker polls the queue and dispatches jobs to registered handlers with
// bounded concurrency.
type Worker struct {
	config   WorkerConfig
	store    Store
	registry *Registry
	limiter  *rate.Limiter
	log      *slog.Logger

	group  errgroup.Group
	active atomic.Int32

	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  *sync.Once
	running   bool
	mu        sync.Mutex

	metricsMu sync.RWMutex
	metrics   WorkerMetrics
}

// NewWorker creates a new worker
func NewWorker(store Store, registry *Registry, config WorkerConfig, log *slog.Logger) *Worker {
	def := DefaultWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}

	limit := rate.Inf
	burst := 1
	if config.RatePerSecond > 0 {
		limit = rate.Limit(config.RatePerSecond)
		burst = max(1, int(config.RatePerSecond))
	}

	w := &Worker{
		config:   config,
		store:    store,
		registry: registry,
		limiter:  rate.NewLimiter(limit, burst),
		log:      log.With(logger.Scope("jobs.worker")),
	}
	w.group.SetLimit(config.Concurrency)
	return w
}

// Start begins processing jobs
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	if w.config.RecoverStaleOnStart {
		if _, err := w.store.RecoverStale(ctx, w.config.StaleAfter); err != nil {
			w.log.Warn("failed to recover stale jobs on start", logger.Error(err))
		}
	}

	w.stopCh = make(chan struct{})
	w.stoppedCh = make(chan struct{})
	w.stopOnce = &sync.Once{}
	w.running = true

	go w.run()

	w.log.Info("job worker started",
		slog.Duration("poll_interval", w.config.PollInterval),
		slog.Int("concurrency", w.config.Concurrency),
		slog.Any("handlers", w.registry.Names()))

	return nil
}

// Stop gracefully stops the worker, waiting for in-flight jobs until ctx expires.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, stoppedCh, once := w.stopCh, w.stoppedCh, w.stopOnce
	w.mu.Unlock()

	once.Do(func() {
		w.log.Debug("stopping job worker")
		close(stopCh)
	})

	done := make(chan struct{})
	go func() {
		<-stoppedCh
		_ = w.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("job worker stopped gracefully")
	case <-ctx.Done():
		w.log.Warn("job worker stop timeout, jobs still in flight",
			slog.Int("active", int(w.active.Load())))
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	return nil
}

// run is the main worker loop. It polls again immediately after a full batch.
func (w *Worker) run() {
	defer close(w.stoppedCh)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-timer.C:
			next := w.config.PollInterval
			if w.poll() {
				next = 0
			}
			timer.Reset(next)
		}
	}
}

// poll dequeues up to the number of free slots and hands the jobs to the
// pool. Returns true when every free slot was filled.
func (w *Worker) poll() bool {
	free := w.config.Concurrency - int(w.active.Load())
	if free <= 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobs, err := w.store.Dequeue(ctx, free)
	if err != nil {
		w.log.Warn("failed to dequeue jobs", logger.Error(err))
		return false
	}

	for _, job := range jobs {
		if err := w.wait(); err != nil {
			w.release(job)
			continue
		}
		w.active.Add(1)
		jobsInFlight.Inc()
		job := job
		w.group.Go(func() error {
			defer func() {
				w.active.Add(-1)
				jobsInFlight.Dec()
			}()
			w.handle(job)
			return nil
		})
	}

	return len(jobs) == free
}

// wait blocks on the start rate limiter until a token is available or the worker stops.
func (w *Worker) wait() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	if err := w.limiter.Wait(ctx); err != nil {
		return errors.New("worker stopping")
	}
	return nil
}

func (w *Worker) handle(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.JobTimeout)
	defer cancel()

	ctx, span := tracing.Start(ctx, "jobs.handle",
		attribute.String("vaguinhas.job.id", job.ID),
		attribute.String("vaguinhas.job.name", job.Name),
		attribute.Int("vaguinhas.job.attempt", job.Attempts),
	)
	defer span.End()

	start := time.Now()
	result, err := w.safeDispatch(ctx, job)
	jobDuration.WithLabelValues(job.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		tracing.RecordError(span, err)
		w.finish(job, err)
		return
	}

	if err := w.store.Complete(context.WithoutCancel(ctx), job.ID, result); err != nil {
		w.log.Error("failed to mark job completed",
			slog.String("job_id", job.ID),
			logger.Error(err))
	}
	jobsProcessed.WithLabelValues(job.Name, "completed").Inc()
	w.record(func(m *WorkerMetrics) { m.Processed++; m.Succeeded++ })

	w.log.Debug("job completed",
		slog.String("job_id", job.ID),
		slog.String("name", job.Name),
		slog.Duration("duration", time.Since(start)))
}

func (w *Worker) finish(job *Job, jobErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dead, err := w.store.Fail(ctx, job, jobErr)
	if err != nil {
		w.log.Error("failed to record job failure",
			slog.String("job_id", job.ID),
			logger.Error(err))
		return
	}
	if dead {
		jobsProcessed.WithLabelValues(job.Name, "dead_letter").Inc()
		w.record(func(m *WorkerMetrics) { m.Processed++; m.DeadLetter++ })
		return
	}
	jobsProcessed.WithLabelValues(job.Name, "retried").Inc()
	w.record(func(m *WorkerMetrics) { m.Processed++; m.Retried++ })
}

// release hands a claimed but never started job back to the queue.
func (w *Worker) release(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.store.Release(ctx, job.ID); err != nil {
		w.log.Warn("failed to release job", slog.String("job_id", job.ID), logger.Error(err))
	}
}

// safeDispatch converts handler panics into errors so one bad job cannot
// take down the pool.
func (w *Worker) safeDispatch(ctx context.Context, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("job handler panicked",
				slog.String("job_id", job.ID),
				slog.String("name", job.Name),
				slog.Any("panic", r))
			err = errors.New("handler panicked")
		}
	}()
	return w.registry.Dispatch(ctx, job)
}

func (w *Worker) record(fn func(m *WorkerMetrics)) {
	w.metricsMu.Lock()
	fn(&w.metrics)
	w.metricsMu.Unlock()
}

// Metrics returns current worker metrics
func (w *Worker) Metrics() WorkerMetrics {
	w.metricsMu.RLock()
	defer w.metricsMu.RUnlock()
	return w.metrics
}

// IsRunning returns whether the worker is currently running
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
