package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/voltbot/volt/internal/scheduler"
)

func buildTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage scheduled tasks",
		Long: `Manage scheduled tasks. Tasks run their command through the
orchestrator, either once at a given time or recurring on a cron
expression or interval. The serve daemon executes due tasks.`,
	}
	cmd.AddCommand(
		buildTasksListCmd(),
		buildTasksAddCmd(),
		buildTasksRemoveCmd(),
		buildTasksPauseCmd(),
		buildTasksResumeCmd(),
	)
	return cmd
}

func buildTasksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			tasks := rt.store.List()
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks scheduled.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tNEXT RUN\tSCHEDULE\tCOMMAND")
			for _, t := range tasks {
				schedule := t.Cron
				if t.Interval > 0 {
					schedule = "every " + t.Interval.String()
				}
				next := "-"
				if !t.NextRunAt.IsZero() {
					next = t.NextRunAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Type, t.Status, next, schedule, t.Command)
			}
			return w.Flush()
		},
	}
}

func buildTasksAddCmd() *cobra.Command {
	var cronExpr string
	var interval time.Duration
	var at string
	var timezone string
	var name string
	cmd := &cobra.Command{
		Use:   "add [command]",
		Short: "Schedule a task",
		Long: `Schedule a task. With --cron or --every the task recurs; with --at
(or neither) it runs once. Times default to UTC; --tz names the
timezone cron expressions evaluate in.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			task := &scheduler.Task{
				Name:     name,
				Command:  strings.Join(args, " "),
				Type:     scheduler.TypeOnce,
				Timezone: timezone,
			}
			switch {
			case cronExpr != "":
				task.Type = scheduler.TypeRecurring
				task.Cron = cronExpr
			case interval > 0:
				task.Type = scheduler.TypeRecurring
				task.Interval = interval
			}

			now := time.Now().UTC()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
				task.NextRunAt = t
			} else if task.Type == scheduler.TypeRecurring {
				next, err := task.NextAfter(now)
				if err != nil {
					return err
				}
				task.NextRunAt = next
			} else {
				task.NextRunAt = now
			}

			if err := rt.store.Add(task); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %s (next run %s).\n",
				task.ID, task.NextRunAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression for recurring tasks")
	cmd.Flags().DurationVar(&interval, "every", 0, "Interval for recurring tasks (e.g. 15m)")
	cmd.Flags().StringVar(&at, "at", "", "First run time, RFC 3339")
	cmd.Flags().StringVar(&timezone, "tz", "", "Timezone for cron evaluation (default UTC)")
	cmd.Flags().StringVar(&name, "name", "", "Human-readable task name")
	return cmd
}

func buildTasksRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [id]",
		Short: "Remove a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.store.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", args[0])
			return nil
		},
	}
}

func buildTasksPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause [id]",
		Short: "Pause a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setTaskStatus(cmd, args[0], scheduler.StatusPaused)
		},
	}
}

func buildTasksResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume [id]",
		Short: "Resume a paused task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setTaskStatus(cmd, args[0], scheduler.StatusPending)
		},
	}
}

func setTaskStatus(cmd *cobra.Command, id string, status scheduler.TaskStatus) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.store.Update(id, func(t *scheduler.Task) {
		t.Status = status
	}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s.\n", id, status)
	return nil
}
