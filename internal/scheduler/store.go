package scheduler

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voltbot/volt/internal/fsutil"
)

// Store persists tasks in a single JSON file. All mutations serialise
// through the mutex; the file is replaced atomically on every write.
// The scheduler never holds the mutex while executing a task.
type Store struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*Task
}

// NewStore creates a store backed by path.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: slog.Default().With("component", "task-store"),
		tasks:  make(map[string]*Task),
	}
}

type storeFile struct {
	Tasks []*Task `json:"tasks"`
}

// Load reads the store from disk. A missing or corrupt file starts
// empty; corruption is logged.
func (s *Store) Load() error {
	var file storeFile
	if err := fsutil.ReadJSON(s.path, &file); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("task store unreadable, starting empty", "path", s.path, "error", err)
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*Task, len(file.Tasks))
	for _, t := range file.Tasks {
		if t.ID == "" {
			continue
		}
		// A crash mid-run leaves tasks stuck in running.
		if t.Status == StatusRunning {
			t.Status = StatusPending
		}
		s.tasks[t.ID] = t
	}
	return nil
}

// Add validates, assigns an ID if needed, and persists the task.
func (s *Store) Add(t *Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("task %s already exists", t.ID)
	}
	s.tasks[t.ID] = t
	return s.saveLocked()
}

// Get returns a copy of the task.
func (s *Store) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// List returns copies of all tasks sorted by creation time.
func (s *Store) List() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Remove deletes a task.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("task %s not found", id)
	}
	delete(s.tasks, id)
	return s.saveLocked()
}

// Update applies fn to the stored task and persists the result.
func (s *Store) Update(id string, fn func(*Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	fn(t)
	return s.saveLocked()
}

// Due returns copies of pending tasks whose next run is at or before
// now, oldest first.
func (s *Store) Due(now time.Time) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Task
	for _, t := range s.tasks {
		if t.Status == StatusPending && !t.NextRunAt.After(now) {
			due = append(due, *t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })
	return due
}

// Purge removes completed tasks whose last run predates cutoff and
// returns how many went.
func (s *Store) Purge(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, t := range s.tasks {
		if t.Status == StatusCompleted && !t.LastRunAt.IsZero() && t.LastRunAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.saveLocked()
}

func (s *Store) saveLocked() error {
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return fsutil.WriteJSONAtomic(s.path, storeFile{Tasks: tasks})
}
