package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/voltbot/volt/pkg/models"
)

type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	result   *models.BotResult
}

func (f *fakeRunner) Run(ctx context.Context, request string, sink models.ProgressSink) *models.BotResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, request)
	if f.result != nil {
		return f.result
	}
	return &models.BotResult{Success: true, Answer: "ok"}
}

func (f *fakeRunner) runs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "tasks.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	store := NewStore(path)
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	task := &Task{
		Name:      "nightly report",
		Command:   "summarise yesterday's logs",
		Type:      TypeRecurring,
		Cron:      "0 3 * * *",
		NextRunAt: time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC),
	}
	if err := store.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if task.ID == "" {
		t.Fatal("Add did not assign an ID")
	}
	if task.Status != StatusPending {
		t.Errorf("status = %q, want pending", task.Status)
	}

	reopened := NewStore(path)
	if err := reopened.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok := reopened.Get(task.ID)
	if !ok {
		t.Fatal("task missing after reload")
	}
	if got.Command != task.Command || got.Cron != task.Cron || !got.NextRunAt.Equal(task.NextRunAt) {
		t.Errorf("reloaded task = %+v", got)
	}
}

func TestStoreAddValidates(t *testing.T) {
	store := newTestStore(t)

	if err := store.Add(&Task{Type: TypeOnce}); err == nil {
		t.Error("empty command accepted")
	}
	if err := store.Add(&Task{Command: "x", Type: TypeRecurring}); err == nil {
		t.Error("recurring task without recurrence accepted")
	}
	if err := store.Add(&Task{Command: "x", Type: TypeRecurring, Cron: "not a cron"}); err == nil {
		t.Error("invalid cron accepted")
	}
	if err := store.Add(&Task{Command: "x", Type: "sometimes"}); err == nil {
		t.Error("unknown type accepted")
	}
}

func TestStoreDueSelection(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	add := func(name string, status TaskStatus, next time.Time) {
		t.Helper()
		task := &Task{Name: name, Command: name, Type: TypeOnce, Status: status, NextRunAt: next}
		if err := store.Add(task); err != nil {
			t.Fatalf("Add %s: %v", name, err)
		}
	}
	add("overdue", StatusPending, now.Add(-time.Hour))
	add("exactly due", StatusPending, now)
	add("future", StatusPending, now.Add(time.Minute))
	add("paused", StatusPaused, now.Add(-time.Hour))
	add("completed", StatusCompleted, now.Add(-time.Hour))

	due := store.Due(now)
	if len(due) != 2 {
		t.Fatalf("Due returned %d tasks, want 2", len(due))
	}
	if due[0].Name != "overdue" || due[1].Name != "exactly due" {
		t.Errorf("due order = %q, %q", due[0].Name, due[1].Name)
	}
}

func TestTickCompletesOnceTask(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{}
	sched := New(store, runner)

	now := time.Now().UTC()
	task := &Task{Command: "ping", Type: TypeOnce, NextRunAt: now.Add(-time.Second)}
	if err := store.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	sched.Tick(context.Background(), now)

	got, ok := store.Get(task.ID)
	if !ok {
		t.Fatal("task gone after tick")
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if !got.LastRunAt.Equal(now) {
		t.Errorf("last run at = %v, want %v", got.LastRunAt, now)
	}
	if runs := runner.runs(); len(runs) != 1 || runs[0] != "ping" {
		t.Errorf("runner saw %v, want one ping", runs)
	}

	// A completed task never runs again.
	sched.Tick(context.Background(), now.Add(time.Minute))
	if runs := runner.runs(); len(runs) != 1 {
		t.Errorf("completed task re-ran: %v", runs)
	}
}

func TestTickAdvancesCronTask(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{}
	sched := New(store, runner)

	now := time.Date(2026, 3, 1, 3, 0, 30, 0, time.UTC)
	task := &Task{
		Command:   "rotate logs",
		Type:      TypeRecurring,
		Cron:      "0 3 * * *",
		NextRunAt: now.Add(-30 * time.Second),
	}
	if err := store.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	sched.Tick(context.Background(), now)

	got, _ := store.Get(task.ID)
	if got.Status != StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	want := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	if !got.NextRunAt.Equal(want) {
		t.Errorf("next run at = %v, want %v", got.NextRunAt, want)
	}
	if !got.NextRunAt.After(now) {
		t.Error("next run not strictly after the tick time")
	}
}

func TestTickAdvancesIntervalTask(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{}
	sched := New(store, runner)

	now := time.Now().UTC()
	task := &Task{
		Command:   "health check",
		Type:      TypeRecurring,
		Interval:  15 * time.Minute,
		NextRunAt: now,
	}
	if err := store.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	sched.Tick(context.Background(), now)

	got, _ := store.Get(task.ID)
	if got.Status != StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if !got.NextRunAt.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("next run at = %v", got.NextRunAt)
	}
}

func TestTickFailsUnschedulableTask(t *testing.T) {
	// A corrupt recurrence can only arrive through the persisted file,
	// so write one directly and reload.
	path := filepath.Join(t.TempDir(), "tasks.json")
	raw := `{"tasks":[{
		"id": "t1",
		"command": "doomed",
		"type": "recurring",
		"cron": "99 99 * * *",
		"status": "pending",
		"next_run_at": "2026-03-01T00:00:00Z",
		"created_at": "2026-02-01T00:00:00Z"
	}]}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	store := NewStore(path)
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	runner := &fakeRunner{}
	sched := New(store, runner)
	now := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	sched.Tick(context.Background(), now)

	got, _ := store.Get("t1")
	if got.Status != StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.LastError == "" {
		t.Error("last error not recorded")
	}

	// Failed tasks are never retried.
	sched.Tick(context.Background(), now.Add(time.Hour))
	if runs := runner.runs(); len(runs) != 1 {
		t.Errorf("failed task re-ran: %v", runs)
	}
}

func TestTickRecordsRunError(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{result: &models.BotResult{Success: false, Error: "stale loop detected"}}
	sched := New(store, runner)

	now := time.Now().UTC()
	task := &Task{
		Command:   "flaky",
		Type:      TypeRecurring,
		Interval:  time.Hour,
		NextRunAt: now,
	}
	if err := store.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	sched.Tick(context.Background(), now)

	got, _ := store.Get(task.ID)
	if got.LastError != "stale loop detected" {
		t.Errorf("last error = %q", got.LastError)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %q, want pending for retry on schedule", got.Status)
	}
}

func TestTickPurgesOldCompletedTasks(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{}
	sched := New(store, runner)

	now := time.Now().UTC()
	old := &Task{
		Command:   "done long ago",
		Type:      TypeOnce,
		Status:    StatusCompleted,
		LastRunAt: now.Add(-8 * 24 * time.Hour),
	}
	recent := &Task{
		Command:   "done yesterday",
		Type:      TypeOnce,
		Status:    StatusCompleted,
		LastRunAt: now.Add(-24 * time.Hour),
	}
	if err := store.Add(old); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Add(recent); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Purge only fires every 100 ticks.
	for i := 0; i < purgeEvery; i++ {
		sched.Tick(context.Background(), now)
	}

	if _, ok := store.Get(old.ID); ok {
		t.Error("stale completed task survived purge")
	}
	if _, ok := store.Get(recent.ID); !ok {
		t.Error("recent completed task purged")
	}
}

func TestLoadRecoversRunningTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	raw := `{"tasks":[{
		"id": "t1",
		"command": "interrupted",
		"type": "once",
		"status": "running",
		"next_run_at": "2026-03-01T00:00:00Z",
		"created_at": "2026-02-01T00:00:00Z"
	}]}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	store := NewStore(path)
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, ok := store.Get("t1")
	if !ok {
		t.Fatal("task missing")
	}
	if got.Status != StatusPending {
		t.Errorf("status = %q, want pending after crash recovery", got.Status)
	}
}

func TestNextAfterHonoursTimezone(t *testing.T) {
	task := &Task{
		ID:       "tz",
		Command:  "morning digest",
		Type:     TypeRecurring,
		Cron:     "0 9 * * *",
		Timezone: "America/New_York",
	}
	// 13:00 UTC is 09:00 in New York during March DST.
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	next, err := task.NextAfter(now)
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	loc, _ := time.LoadLocation("America/New_York")
	want := time.Date(2026, 3, 10, 9, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	task.Timezone = "Atlantis/Nowhere"
	if _, err := task.NextAfter(now); err == nil {
		t.Error("bogus timezone accepted")
	}
}
