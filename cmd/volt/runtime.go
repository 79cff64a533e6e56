package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/voltbot/volt/internal/agent/providers"
	"github.com/voltbot/volt/internal/config"
	"github.com/voltbot/volt/internal/ledger"
	"github.com/voltbot/volt/internal/observability"
	"github.com/voltbot/volt/internal/orchestrator"
	"github.com/voltbot/volt/internal/router"
	"github.com/voltbot/volt/internal/scheduler"
	"github.com/voltbot/volt/internal/skills"
	"github.com/voltbot/volt/internal/smallmodel"
	"github.com/voltbot/volt/internal/tools"
)

// runtime bundles the wired components behind every command.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *tools.Registry
	manifest *skills.Manifest
	cache    *router.Cache
	small    smallmodel.Client
	onDevice smallmodel.Client
	prices   ledger.PriceTable
	store    *scheduler.Store
	metrics  *observability.Metrics
}

type runtimeOption func(*runtime)

// withMetrics registers Prometheus collectors; only the daemon serves
// them, so one-shot commands leave this off.
func withMetrics() runtimeOption {
	return func(r *runtime) { r.metrics = observability.NewMetrics() }
}

// newRuntime loads config and wires storage, tools, skills, and the
// router cache. Model clients are created lazily by orchestrator().
func newRuntime(ctx context.Context, opts ...runtimeOption) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{cfg.DataDir, cfg.Path("tools"), cfg.Path("skills"), cfg.Path("router"), cfg.Path("scheduler")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	rt := &runtime{
		cfg:    cfg,
		logger: slog.Default().With("component", "cli"),
	}
	for _, opt := range opts {
		opt(rt)
	}

	rt.registry = tools.NewRegistry(cfg.Path("tools"))
	if err := tools.RegisterBuiltins(rt.registry); err != nil {
		return nil, err
	}
	if n, err := rt.registry.LoadPersisted(); err != nil {
		rt.logger.Warn("loading persisted tools failed", "error", err)
	} else if n > 0 {
		rt.logger.Debug("loaded persisted tools", "count", n)
	}
	if _, err := rt.registry.LoadPromoted(); err != nil {
		rt.logger.Warn("loading promoted tools failed", "error", err)
	}

	rt.manifest = skills.NewManifest(cfg.Path("skills"))
	if err := rt.manifest.Discover(ctx); err != nil {
		rt.logger.Warn("skill discovery failed", "error", err)
	}

	rt.cache = router.NewCache(cfg.Path("router", "manifest.json"))
	rt.cache.Load()

	rt.onDevice = smallmodel.NewOnDeviceClient(cfg.OnDeviceBinary)
	rt.small = smallmodel.Prefer(
		rt.onDevice,
		smallmodel.NewLocalRunnerClient(cfg.LocalRunnerURL, ""),
		smallmodel.NewCloudFastClient(cfg.AnthropicAPIKey),
	)

	rt.prices = ledger.DefaultPrices().WithOverrides(priceOverrides(cfg))

	rt.store = scheduler.NewStore(cfg.Path("scheduler", "tasks.json"))
	if err := rt.store.Load(); err != nil {
		return nil, err
	}

	return rt, nil
}

// orchestrator builds the run pipeline. The cloud tiers require an API
// key; everything else degrades gracefully.
func (rt *runtime) orchestrator() (*orchestrator.Orchestrator, error) {
	if rt.cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required to execute requests")
	}
	strong, err := providers.NewAnthropicClient(providers.AnthropicConfig{
		APIKey:   rt.cfg.AnthropicAPIKey,
		Model:    rt.cfg.StrongModel,
		Provider: ledger.ProviderCloudStrong,
	})
	if err != nil {
		return nil, err
	}
	fast, err := providers.NewAnthropicClient(providers.AnthropicConfig{
		APIKey:   rt.cfg.AnthropicAPIKey,
		Model:    rt.cfg.FastModel,
		Provider: ledger.ProviderCloudFast,
	})
	if err != nil {
		return nil, err
	}

	var onDevice smallmodel.Client
	if rt.onDevice != nil && rt.onDevice.Available() {
		onDevice = rt.onDevice
	}

	return orchestrator.New(orchestrator.Config{
		Router:            rt.cache,
		Skills:            rt.manifest,
		Registry:          rt.registry,
		Strong:            strong,
		Fast:              fast,
		Small:             rt.small,
		OnDeviceModel:     onDevice,
		Prices:            rt.prices,
		ContextWindow:     rt.cfg.ContextWindow,
		ErrorThreshold:    rt.cfg.ErrorThreshold,
		EmptyThreshold:    rt.cfg.EmptyThreshold,
		RepeatThreshold:   rt.cfg.RepeatThreshold,
		AllowContinuation: true,
		SkillAutoCreation: true,
		Metrics:           rt.metrics,
	}), nil
}

func (rt *runtime) close() {
	if rt.manifest != nil {
		_ = rt.manifest.Close()
	}
}

func priceOverrides(cfg *config.Config) map[string]ledger.Rate {
	if len(cfg.PriceOverrides) == 0 {
		return nil
	}
	out := make(map[string]ledger.Rate, len(cfg.PriceOverrides))
	for provider, rate := range cfg.PriceOverrides {
		out[provider] = ledger.Rate{Input: rate.Input, Output: rate.Output}
	}
	return out
}
