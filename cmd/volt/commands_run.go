package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voltbot/volt/pkg/models"
)

func buildRunCmd() *cobra.Command {
	var showLedger bool
	var jsonOut bool
	var quiet bool
	cmd := &cobra.Command{
		Use:   "run [request]",
		Short: "Execute a request through the tiered pipeline",
		Long: `Execute a natural-language request. The router tries a cached direct
answer first, then the on-device model, then the cloud agent loop.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, strings.Join(args, " "), showLedger, jsonOut, quiet)
		},
	}
	cmd.Flags().BoolVar(&showLedger, "ledger", false, "Print the token ledger after the run")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	return cmd
}

func runRequest(cmd *cobra.Command, request string, showLedger, jsonOut, quiet bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	orch, err := rt.orchestrator()
	if err != nil {
		return err
	}

	var sink models.ProgressSink = models.NullSink{}
	if !quiet && !jsonOut {
		sink = progressPrinter(cmd)
	}

	result := orch.Run(ctx, request, sink)

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out := cmd.OutOrStdout()
	if !result.Success {
		fmt.Fprintf(out, "\nFailed: %s\n", result.Error)
		if showLedger && result.LedgerReport != "" {
			fmt.Fprintln(out, result.LedgerReport)
		}
		return fmt.Errorf("run failed")
	}

	fmt.Fprintln(out, result.Answer)
	if len(result.CreatedFiles) > 0 {
		fmt.Fprintln(out, "\nCreated files:")
		for _, f := range result.CreatedFiles {
			fmt.Fprintf(out, "  %s\n", f)
		}
	}
	if showLedger && result.LedgerReport != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, result.LedgerReport)
	}
	return nil
}

// progressPrinter renders pipeline stages to stderr so stdout stays
// clean for the answer.
func progressPrinter(cmd *cobra.Command) models.ProgressSink {
	out := cmd.ErrOrStderr()
	return models.SinkFunc(func(event models.ProgressEvent) {
		switch event.Stage {
		case models.StageRouted:
			fmt.Fprintf(out, "routed: %s\n", event.Message)
		case models.StageAnalyzed:
			fmt.Fprintf(out, "complexity: %s\n", event.Message)
		case models.StageSelected:
			if event.Message != "0 skills" {
				fmt.Fprintf(out, "skills: %s\n", event.Message)
			}
		case models.StageIteration:
			fmt.Fprintf(out, "iteration %s\n", event.Message)
		case models.StageTool:
			fmt.Fprintf(out, "  tool: %s\n", event.Message)
		case models.StageIterationSummary:
			fmt.Fprintf(out, "  %s\n", event.Message)
		case models.StageError:
			fmt.Fprintf(out, "error: %s\n", event.Message)
		}
	})
}
