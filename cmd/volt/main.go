// Package main provides the CLI entry point for volt, a tiered
// automation agent runtime.
//
// Requests route through the cheapest tier that can serve them: cached
// direct answers, an on-device small model, and finally the cloud agent
// loop with tool execution.
//
// # Basic Usage
//
// Execute a request:
//
//	volt run "check disk usage on /"
//
// Start the daemon (scheduler, skill watcher, metrics endpoint):
//
//	volt serve
//
// # Environment Variables
//
//   - VOLT_DATA_DIR: State directory (default: ~/.volt)
//   - ANTHROPIC_API_KEY: API key for the cloud tiers
//   - VOLT_LOCAL_RUNNER_URL: OpenAI-compatible local runner base URL
//   - VOLT_ON_DEVICE_BIN: Path to the on-device model binary
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/voltbot/volt/internal/observability"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  os.Getenv("VOLT_LOG_LEVEL"),
		Format: os.Getenv("VOLT_LOG_FORMAT"),
	})
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "volt",
		Short: "volt - tiered automation agent",
		Long: `Volt executes natural-language automation requests through a tiered
pipeline: cached router answers, an on-device small model, and a cloud
agent loop with tool execution. Successful runs can be distilled into
reusable skills.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildServeCmd(),
		buildSkillsCmd(),
		buildToolsCmd(),
		buildTasksCmd(),
		buildRouterCmd(),
		buildStatusCmd(),
	)
	return rootCmd
}
