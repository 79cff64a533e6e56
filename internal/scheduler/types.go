// Package scheduler runs persisted tasks through the orchestrator on a
// tick loop. Tasks are either one-shot or recurring on a cron
// expression or fixed interval.
package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TaskType distinguishes one-shot from recurring tasks.
type TaskType string

const (
	TypeOnce      TaskType = "once"
	TypeRecurring TaskType = "recurring"
)

// TaskStatus is the task lifecycle state.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusPaused    TaskStatus = "paused"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Task is one scheduled unit of work. Command is handed to the
// orchestrator verbatim.
type Task struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Command string   `json:"command"`
	Type    TaskType `json:"type"`

	// Cron holds the recurrence expression; Interval is the simpler
	// alternative. Exactly one is set for recurring tasks.
	Cron     string        `json:"cron,omitempty"`
	Interval time.Duration `json:"interval,omitempty"`

	// Timezone names the location cron expressions evaluate in.
	// Empty means UTC.
	Timezone string `json:"timezone,omitempty"`

	Status    TaskStatus `json:"status"`
	NextRunAt time.Time  `json:"next_run_at"`
	LastRunAt time.Time  `json:"last_run_at,omitzero"`
	LastError string     `json:"last_error,omitempty"`

	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Validate checks a task before it enters the store.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Command) == "" {
		return fmt.Errorf("command is required")
	}
	switch t.Type {
	case TypeOnce:
	case TypeRecurring:
		if t.Cron == "" && t.Interval <= 0 {
			return fmt.Errorf("recurring task needs a cron expression or interval")
		}
		if t.Cron != "" {
			if _, err := cronParser.Parse(t.Cron); err != nil {
				return fmt.Errorf("invalid cron expression: %w", err)
			}
		}
	default:
		return fmt.Errorf("unknown task type %q", t.Type)
	}
	return nil
}

// NextAfter computes the next run strictly after now. For cron tasks
// the expression evaluates in the task's timezone, defaulting to UTC.
func (t *Task) NextAfter(now time.Time) (time.Time, error) {
	if t.Interval > 0 {
		return now.Add(t.Interval), nil
	}
	if t.Cron == "" {
		return time.Time{}, fmt.Errorf("task %s has no recurrence", t.ID)
	}

	sched, err := cronParser.Parse(t.Cron)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
	}
	loc := time.UTC
	if t.Timezone != "" {
		tz, err := time.LoadLocation(t.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("load timezone %q: %w", t.Timezone, err)
		}
		loc = tz
	}
	return sched.Next(now.In(loc)), nil
}
