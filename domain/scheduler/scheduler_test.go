package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/internal/jobs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_IsRunning(t *testing.T) {
	s := NewScheduler(testLogger(), nil)

	if s.IsRunning() {
		t.Error("New scheduler should not be running")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.IsRunning() {
		t.Error("Scheduler should be running after Start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.IsRunning() {
		t.Error("Scheduler should not be running after Stop")
	}
}

func TestScheduler_ListTasks(t *testing.T) {
	s := NewScheduler(testLogger(), nil)
	noop := func(context.Context) error { return nil }

	if tasks := s.ListTasks(); len(tasks) != 0 {
		t.Errorf("New scheduler should have 0 tasks, got %d", len(tasks))
	}

	if err := s.AddIntervalTask("b_task", time.Hour, noop); err != nil {
		t.Fatal(err)
	}
	if err := s.AddCronTask("a_task", "0 0 9 * * *", noop); err != nil {
		t.Fatal(err)
	}

	tasks := s.ListTasks()
	if len(tasks) != 2 || tasks[0] != "a_task" || tasks[1] != "b_task" {
		t.Errorf("ListTasks() = %v, want [a_task b_task]", tasks)
	}

	s.RemoveTask("a_task")
	if tasks := s.ListTasks(); len(tasks) != 1 {
		t.Errorf("expected 1 task after removal, got %d", len(tasks))
	}
}

func TestScheduler_AddCronTask_ReplaceExisting(t *testing.T) {
	s := NewScheduler(testLogger(), nil)
	noop := func(context.Context) error { return nil }

	if err := s.AddCronTask("digest", "0 0 9 * * *", noop); err != nil {
		t.Fatal(err)
	}
	if err := s.AddCronTask("digest", "0 0 10 * * *", noop); err != nil {
		t.Fatal(err)
	}

	info := s.GetTaskInfo()
	if len(info) != 1 {
		t.Fatalf("expected 1 task, got %d", len(info))
	}
	if info[0].Schedule != "0 0 10 * * *" {
		t.Errorf("Schedule = %q, want the replacement", info[0].Schedule)
	}
}

func TestScheduler_AddCronTask_InvalidSchedule(t *testing.T) {
	s := NewScheduler(testLogger(), nil)

	err := s.AddCronTask("bad", "every day at nine", func(context.Context) error { return nil })
	if err == nil {
		t.Error("expected error for invalid cron expression")
	}
	if len(s.ListTasks()) != 0 {
		t.Error("invalid task should not be registered")
	}
}

func TestScheduler_Location(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatal(err)
	}
	s := NewScheduler(testLogger(), loc)
	if err := s.AddCronTask("digest", "0 0 9 * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}

	next := s.GetTaskInfo()[0].NextRun.In(loc)
	if next.Hour() != 9 || next.Minute() != 0 {
		t.Errorf("next run = %v, want 09:00 in São Paulo", next)
	}
}

func TestScheduler_RunTask(t *testing.T) {
	s := NewScheduler(testLogger(), nil)
	var calls atomic.Int32

	s.runTask("ok", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("task context should carry a deadline")
		}
		calls.Add(1)
		return nil
	})
	s.runTask("fails", func(context.Context) error {
		calls.Add(1)
		return errors.New("boom")
	})

	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestScheduler_RunTaskRecordsLastRun(t *testing.T) {
	s := NewScheduler(testLogger(), nil)
	failing := func(context.Context) error { return errors.New("mailgun down") }
	if err := s.AddIntervalTask("digest", time.Hour, failing); err != nil {
		t.Fatal(err)
	}

	if info := s.GetTaskInfo()[0]; info.LastRun != nil {
		t.Errorf("LastRun = %v before any run", info.LastRun)
	}
	s.runTask("digest", failing)

	info := s.GetTaskInfo()[0]
	if info.LastRun == nil || info.LastError != "mailgun down" {
		t.Errorf("GetTaskInfo() = %+v, want the failed run recorded", info)
	}
}

func TestAddScheduledTask(t *testing.T) {
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name     string
		schedule string
		interval time.Duration
		want     string
	}{
		{name: "cron wins", schedule: "0 0 2 * * *", interval: 5 * time.Minute, want: "0 0 2 * * *"},
		{name: "interval fallback", interval: 5 * time.Minute, want: "@every 5m0s"},
		{name: "disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(testLogger(), nil)
			if err := addScheduledTask(s, testLogger(), "task", tt.schedule, tt.interval, noop); err != nil {
				t.Fatalf("addScheduledTask: %v", err)
			}
			info := s.GetTaskInfo()
			if tt.want == "" {
				if len(info) != 0 {
					t.Errorf("expected no task, got %v", info)
				}
				return
			}
			if len(info) != 1 || info[0].Schedule != tt.want {
				t.Errorf("GetTaskInfo() = %+v, want schedule %q", info, tt.want)
			}
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Timezone = "America/Sao_Paulo"
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.DailyDigestSchedule = "0 0 9 * * *"
	cfg.Scheduler.ConfirmationReminderEvery = time.Hour
	cfg.Jobs.StaleAfter = 10 * time.Minute
	cfg.Jobs.RetainDone = 7 * 24 * time.Hour

	c := NewConfig(cfg)
	if !c.Enabled {
		t.Error("Enabled should be true")
	}
	if c.Location.String() != "America/Sao_Paulo" {
		t.Errorf("Location = %s", c.Location)
	}
	if c.DailyDigestSchedule != "0 0 9 * * *" {
		t.Errorf("DailyDigestSchedule = %q", c.DailyDigestSchedule)
	}
	if c.ConfirmationReminderInterval != time.Hour {
		t.Errorf("ConfirmationReminderInterval = %v", c.ConfirmationReminderInterval)
	}
	if c.RetainCompleted != 7*24*time.Hour {
		t.Errorf("RetainCompleted = %v", c.RetainCompleted)
	}
}

type fakeCampaigns struct {
	dates     []string
	reminders int
	supportID string
}

func (f *fakeCampaigns) TriggerDailyDigest(_ context.Context, date string) (*jobs.Job, bool, error) {
	f.dates = append(f.dates, date)
	return &jobs.Job{ID: "digest"}, len(f.dates) == 1, nil
}

func (f *fakeCampaigns) TriggerConfirmationReminders(context.Context) (*jobs.Job, bool, error) {
	f.reminders++
	return &jobs.Job{ID: "reminders"}, true, nil
}

func (f *fakeCampaigns) TriggerSupportUs(_ context.Context, id string) (*jobs.Job, bool, error) {
	f.supportID = id
	return &jobs.Job{ID: "support"}, true, nil
}

type fakeLinks struct{ calls int }

func (f *fakeLinks) CleanupMagicLinks(context.Context) (int64, error) {
	f.calls++
	return 3, nil
}

type fakeQueue struct {
	staleAfter time.Duration
	retain     time.Duration
}

func (f *fakeQueue) RecoverStale(_ context.Context, olderThan time.Duration) (int, error) {
	f.staleAfter = olderThan
	return 0, nil
}

func (f *fakeQueue) Cleanup(_ context.Context, olderThan time.Duration) (int, error) {
	f.retain = olderThan
	return 5, nil
}

func TestTasks(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatal(err)
	}
	campaigns := &fakeCampaigns{}
	links := &fakeLinks{}
	queue := &fakeQueue{}
	cfg := &Config{Location: loc, StaleAfter: 10 * time.Minute, RetainCompleted: 168 * time.Hour}

	tasks := NewTasks(campaigns, links, queue, cfg, testLogger())
	// 01:30 UTC is still the previous day in São Paulo.
	tasks.now = func() time.Time { return time.Date(2026, 6, 2, 1, 30, 0, 0, time.UTC) }
	ctx := context.Background()

	for _, run := range []func(context.Context) error{
		tasks.DailyDigest, tasks.DailyDigest, tasks.ConfirmationReminders, tasks.SupportUs,
		tasks.MagicLinkCleanup, tasks.StaleJobRecovery, tasks.JobCleanup,
	} {
		if err := run(ctx); err != nil {
			t.Fatalf("task failed: %v", err)
		}
	}

	if len(campaigns.dates) != 2 || campaigns.dates[0] != "2026-06-01" || campaigns.dates[1] != "2026-06-01" {
		t.Errorf("digest dates = %v, want the same local date twice", campaigns.dates)
	}
	if campaigns.reminders != 1 {
		t.Errorf("reminders = %d, want 1", campaigns.reminders)
	}
	if campaigns.supportID != "scheduled-2026-06-01" {
		t.Errorf("support-us campaign = %q", campaigns.supportID)
	}
	if links.calls != 1 {
		t.Errorf("magic link cleanup calls = %d", links.calls)
	}
	if queue.staleAfter != 10*time.Minute || queue.retain != 168*time.Hour {
		t.Errorf("queue maintenance thresholds = %v / %v", queue.staleAfter, queue.retain)
	}
}
