package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/voltbot/volt/internal/observability"
	"github.com/voltbot/volt/pkg/models"
)

// Tick loop defaults.
const (
	DefaultInterval = 60 * time.Second

	// purgeEvery is the tick cadence for clearing old completed tasks.
	purgeEvery = 100

	// purgeAge is how long completed tasks are kept.
	purgeAge = 7 * 24 * time.Hour
)

// Runner executes a task command. The orchestrator satisfies this.
type Runner interface {
	Run(ctx context.Context, request string, sink models.ProgressSink) *models.BotResult
}

// Scheduler drives the tick loop: due tasks execute sequentially, one
// tick at a time, outside the store lock.
type Scheduler struct {
	store    *Store
	runner   Runner
	interval time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
	ticks    int
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval overrides the tick cadence.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// WithMetrics enables scheduled-run counters.
func WithMetrics(m *observability.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a scheduler over store and runner.
func New(store *Store, runner Runner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:    store,
		runner:   runner,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "scheduler")
	}
	return s
}

// Start runs the tick loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick executes everything due at now. Exported so tests and the CLI
// can drive the loop directly.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.ticks++

	for _, task := range s.store.Due(now) {
		if ctx.Err() != nil {
			return
		}
		s.execute(ctx, task, now)
	}

	if s.ticks%purgeEvery == 0 {
		if removed, err := s.store.Purge(now.Add(-purgeAge)); err != nil {
			s.logger.Warn("purge failed", "error", err)
		} else if removed > 0 {
			s.logger.Info("purged completed tasks", "count", removed)
		}
	}
}

// execute runs one task. The store lock is only held for the status
// transitions, never during the run itself.
func (s *Scheduler) execute(ctx context.Context, task Task, now time.Time) {
	if err := s.store.Update(task.ID, func(t *Task) {
		t.Status = StatusRunning
	}); err != nil {
		s.logger.Warn("marking task running failed", "task", task.ID, "error", err)
		return
	}

	s.logger.Info("executing task", "task", task.ID, "command", task.Command)
	result := s.runner.Run(ctx, task.Command, models.NullSink{})
	if result != nil && result.Success {
		s.metrics.RecordScheduledRun("success")
	} else {
		s.metrics.RecordScheduledRun("error")
	}

	err := s.store.Update(task.ID, func(t *Task) {
		t.LastRunAt = now
		t.LastError = ""
		if result != nil && !result.Success {
			t.LastError = result.Error
		}

		if t.Type == TypeOnce {
			t.Status = StatusCompleted
			return
		}

		next, nerr := t.NextAfter(now)
		if nerr != nil {
			// An unschedulable recurring task fails permanently; it
			// is never retried.
			t.Status = StatusFailed
			t.LastError = nerr.Error()
			return
		}
		t.Status = StatusPending
		t.NextRunAt = next
	})
	if err != nil {
		s.logger.Warn("persisting task result failed", "task", task.ID, "error", err)
	}
}
