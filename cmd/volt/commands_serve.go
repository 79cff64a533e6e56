package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/voltbot/volt/internal/ledger"
	"github.com/voltbot/volt/internal/scheduler"
)

func buildServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the volt daemon",
		Long: `Run the daemon: the task scheduler tick loop, the skill directory
watcher, and the Prometheus metrics endpoint.`,
		RunE: runServe,
	}
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, withMetrics())
	if err != nil {
		return err
	}
	defer rt.close()

	orch, err := rt.orchestrator()
	if err != nil {
		return err
	}

	// Generate routing categories on first start.
	if !rt.cache.Loaded() && rt.small != nil {
		led := ledger.New(rt.prices)
		if err := rt.cache.Generate(ctx, rt.small, led, rt.manifest.Summaries(), rt.registry.Names()); err != nil {
			rt.logger.Warn("router generation failed", "error", err)
		}
	}

	// Skill hot reload.
	if err := rt.manifest.Watch(ctx); err != nil {
		rt.logger.Warn("skill watcher unavailable", "error", err)
	}

	// Metrics endpoint.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              rt.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		rt.logger.Info("metrics endpoint listening", "addr", rt.cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics endpoint failed", "error", err)
		}
	}()

	sched := scheduler.New(rt.store, orch,
		scheduler.WithInterval(rt.cfg.SchedulerInterval),
		scheduler.WithMetrics(rt.metrics),
	)

	fmt.Fprintln(cmd.OutOrStdout(), "volt daemon started")
	sched.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return nil
}
