// Package config loads runtime configuration from the environment.
// All values are read once at process start; components receive the
// resolved Config rather than consulting the environment themselves.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Defaults for tunables that are usually left unset.
const (
	DefaultSchedulerInterval = 60 * time.Second
	DefaultModelTimeout      = 300 * time.Second
	DefaultContextWindow     = 80_000
	DefaultErrorThreshold    = 5
	DefaultEmptyThreshold    = 3
	DefaultRepeatThreshold   = 4

	DefaultStrongModel = "claude-sonnet-4-5"
	DefaultFastModel   = "claude-haiku-4-5"
	DefaultMetricsAddr = ":9090"
)

// PriceOverride is a per-provider price entry, USD per million tokens.
type PriceOverride struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// Config holds everything the runtime reads from the environment.
type Config struct {
	// DataDir is the root for all persisted state (tools/, skills/,
	// router/, scheduler/).
	DataDir string

	// AnthropicAPIKey authenticates the cloud model providers.
	AnthropicAPIKey string

	// LocalRunnerURL is the base URL of an OpenAI-compatible local
	// model runner (empty disables it).
	LocalRunnerURL string

	// OnDeviceBinary is the path of the on-device small-model binary.
	OnDeviceBinary string

	// StrongModel and FastModel pick the cloud model per tier.
	StrongModel string
	FastModel   string

	// MetricsAddr is the listen address for the Prometheus endpoint
	// served by the daemon.
	MetricsAddr string

	// SchedulerInterval is the tick cadence for the task scheduler.
	SchedulerInterval time.Duration

	// ModelTimeout bounds each remote model call.
	ModelTimeout time.Duration

	// ContextWindow is the virtual token limit used for compaction.
	ContextWindow int

	// Stale-loop guard thresholds.
	ErrorThreshold  int
	EmptyThreshold  int
	RepeatThreshold int

	// PriceOverrides replaces built-in provider rates, keyed by
	// provider label.
	PriceOverrides map[string]PriceOverride
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:           os.Getenv("VOLT_DATA_DIR"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		LocalRunnerURL:    os.Getenv("VOLT_LOCAL_RUNNER_URL"),
		OnDeviceBinary:    os.Getenv("VOLT_ON_DEVICE_BIN"),
		StrongModel:       DefaultStrongModel,
		FastModel:         DefaultFastModel,
		MetricsAddr:       DefaultMetricsAddr,
		SchedulerInterval: DefaultSchedulerInterval,
		ModelTimeout:      DefaultModelTimeout,
		ContextWindow:     DefaultContextWindow,
		ErrorThreshold:    DefaultErrorThreshold,
		EmptyThreshold:    DefaultEmptyThreshold,
		RepeatThreshold:   DefaultRepeatThreshold,
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".volt")
	}

	if v := os.Getenv("VOLT_STRONG_MODEL"); v != "" {
		cfg.StrongModel = v
	}
	if v := os.Getenv("VOLT_FAST_MODEL"); v != "" {
		cfg.FastModel = v
	}
	if v := os.Getenv("VOLT_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	if v := os.Getenv("VOLT_SCHEDULER_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse VOLT_SCHEDULER_INTERVAL: %w", err)
		}
		cfg.SchedulerInterval = d
	}
	if v := os.Getenv("VOLT_MODEL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse VOLT_MODEL_TIMEOUT: %w", err)
		}
		cfg.ModelTimeout = d
	}

	var err error
	if cfg.ContextWindow, err = intEnv("VOLT_CONTEXT_WINDOW", cfg.ContextWindow); err != nil {
		return nil, err
	}
	if cfg.ErrorThreshold, err = intEnv("VOLT_STALE_ERROR_THRESHOLD", cfg.ErrorThreshold); err != nil {
		return nil, err
	}
	if cfg.EmptyThreshold, err = intEnv("VOLT_STALE_EMPTY_THRESHOLD", cfg.EmptyThreshold); err != nil {
		return nil, err
	}
	if cfg.RepeatThreshold, err = intEnv("VOLT_STALE_REPEAT_THRESHOLD", cfg.RepeatThreshold); err != nil {
		return nil, err
	}

	if v := os.Getenv("VOLT_PRICE_OVERRIDES"); v != "" {
		overrides := map[string]PriceOverride{}
		if err := json.Unmarshal([]byte(v), &overrides); err != nil {
			return nil, fmt.Errorf("parse VOLT_PRICE_OVERRIDES: %w", err)
		}
		cfg.PriceOverrides = overrides
	}

	return cfg, nil
}

// Path joins elem onto the data root.
func (c *Config) Path(elem ...string) string {
	return filepath.Join(append([]string{c.DataDir}, elem...)...)
}

func intEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return n, nil
}
