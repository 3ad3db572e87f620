package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

var taskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vaguinhas_scheduler_task_runs_total",
	Help: "Scheduled task runs by task and outcome.",
}, []string{"task", "outcome"})

const defaultTaskTimeout = 30 * time.Minute

// TaskFunc is a scheduled task body.
type TaskFunc func(ctx context.Context) error

type entry struct {
	id       cron.EntryID
	schedule string

	lastRun  time.Time
	lastTook time.Duration
	lastErr  string
}

// Scheduler runs named tasks on six-field cron expressions or fixed
// intervals, evaluated in one timezone. A task whose previous run is still
// going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	loc     *time.Location
	timeout time.Duration
	log     *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	running bool
}

// NewScheduler creates a scheduler that evaluates schedules in loc (UTC when nil).
func NewScheduler(log *slog.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	log = log.With(logger.Scope("scheduler"))
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
		),
		loc:     loc,
		timeout: defaultTaskTimeout,
		log:     log,
		entries: make(map[string]*entry),
	}
}

func (s *Scheduler) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.cron.Start()
	s.running = true
	s.log.Info("scheduler started", slog.Int("tasks", len(s.entries)))
	return nil
}

// Stop stops triggering new runs and waits for in-flight runs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stopped with tasks still running")
	}
	return nil
}

// AddCronTask registers task under name, replacing an existing task of the
// same name. The expression has a leading seconds field.
func (s *Scheduler) AddCronTask(name, schedule string, task TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(schedule, func() { s.runTask(name, task) })
	if err != nil {
		return err
	}
	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old.id)
	}
	s.entries[name] = &entry{id: id, schedule: schedule}

	s.log.Info("task scheduled", slog.String("name", name), slog.String("schedule", schedule))
	return nil
}

func (s *Scheduler) AddIntervalTask(name string, interval time.Duration, task TaskFunc) error {
	return s.AddCronTask(name, "@every "+interval.String(), task)
}

func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		s.cron.Remove(e.id)
		delete(s.entries, name)
	}
}

func (s *Scheduler) runTask(name string, task TaskFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := task(ctx)
	took := time.Since(start)

	outcome, lastErr := "ok", ""
	if err != nil {
		outcome, lastErr = "error", err.Error()
		s.log.Error("scheduled task failed", slog.String("name", name), slog.Duration("took", took), logger.Error(err))
	} else {
		s.log.Debug("scheduled task done", slog.String("name", name), slog.Duration("took", took))
	}
	taskRuns.WithLabelValues(name, outcome).Inc()

	s.mu.Lock()
	if e, ok := s.entries[name]; ok {
		e.lastRun, e.lastTook, e.lastErr = start, took, lastErr
	}
	s.mu.Unlock()
}

// ListTasks returns the registered task names in order.
func (s *Scheduler) ListTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaskInfo describes a registered task for the debug endpoint.
type TaskInfo struct {
	Name      string        `json:"name"`
	Schedule  string        `json:"schedule"`
	NextRun   time.Time     `json:"nextRun"`
	LastRun   *time.Time    `json:"lastRun,omitempty"`
	LastTook  time.Duration `json:"lastTookNs,omitempty"`
	LastError string        `json:"lastError,omitempty"`
}

// GetTaskInfo returns every task sorted by name. Before Start the next run
// is computed from the schedule.
func (s *Scheduler) GetTaskInfo() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().In(s.loc)
	out := make([]TaskInfo, 0, len(s.entries))
	for name, e := range s.entries {
		ce := s.cron.Entry(e.id)
		next := ce.Next
		if next.IsZero() && ce.Schedule != nil {
			next = ce.Schedule.Next(now)
		}
		info := TaskInfo{Name: name, Schedule: e.schedule, NextRun: next, LastTook: e.lastTook, LastError: e.lastErr}
		if !e.lastRun.IsZero() {
			last := e.lastRun
			info.LastRun = &last
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// cronLogger routes cron's own messages into slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, logger.Error(err))...)
}
