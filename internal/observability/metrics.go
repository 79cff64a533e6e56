// Package observability exposes Prometheus metrics for the execution
// pipeline: runs by tier and outcome, model call volume and token
// consumption, tool executions, stall detections, and scheduled runs.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/voltbot/volt/internal/ledger"
)

// Metrics holds every collector the pipeline records into. Create one
// per process with NewMetrics; collectors register with the default
// Prometheus registry and serve from the standard /metrics handler.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// RunCounter counts orchestrator runs.
	// Labels: tier (direct_answer|on_device|fast_cloud|strong_cloud), status (success|error)
	RunCounter *prometheus.CounterVec

	// RunDuration measures end-to-end run latency in seconds.
	// Labels: tier
	RunDuration *prometheus.HistogramVec

	// ModelCallCounter counts model calls by provider and purpose.
	// Labels: provider, purpose
	ModelCallCounter *prometheus.CounterVec

	// TokensUsed tracks token consumption.
	// Labels: provider, purpose, type (input|output)
	TokensUsed *prometheus.CounterVec

	// CloudCost accumulates estimated cloud spend in dollars.
	CloudCost prometheus.Counter

	// ToolCallCounter counts tool invocations surfaced in run results.
	// Labels: tool_name
	ToolCallCounter *prometheus.CounterVec

	// StallCounter counts runs aborted by the stale-loop guard.
	StallCounter prometheus.Counter

	// CompactionSavings tracks tokens reclaimed by context compaction
	// and result summarisation.
	CompactionSavings prometheus.Counter

	// ScheduledRunCounter counts task executions from the scheduler.
	// Labels: status (success|error)
	ScheduledRunCounter *prometheus.CounterVec
}

// NewMetrics registers all collectors with the default registry. Call
// once at startup.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volt_runs_total",
				Help: "Total orchestrator runs by executing tier and outcome",
			},
			[]string{"tier", "status"},
		),

		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "volt_run_duration_seconds",
				Help:    "End-to-end run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"tier"},
		),

		ModelCallCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volt_model_calls_total",
				Help: "Total model calls by provider and purpose",
			},
			[]string{"provider", "purpose"},
		),

		TokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volt_tokens_total",
				Help: "Total tokens consumed by provider, purpose, and direction",
			},
			[]string{"provider", "purpose", "type"},
		),

		CloudCost: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "volt_cloud_cost_dollars_total",
				Help: "Estimated cumulative cloud model spend in dollars",
			},
		),

		ToolCallCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volt_tool_calls_total",
				Help: "Total tool invocations by tool name",
			},
			[]string{"tool_name"},
		),

		StallCounter: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "volt_stalled_runs_total",
				Help: "Runs aborted by the stale-loop guard",
			},
		),

		CompactionSavings: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "volt_compaction_tokens_saved_total",
				Help: "Tokens reclaimed by summarisation and compaction",
			},
		),

		ScheduledRunCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volt_scheduled_runs_total",
				Help: "Task executions triggered by the scheduler",
			},
			[]string{"status"},
		),
	}
}

// RecordRun books one completed orchestrator run.
func (m *Metrics) RecordRun(tier, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RunCounter.WithLabelValues(tier, status).Inc()
	m.RunDuration.WithLabelValues(tier).Observe(durationSeconds)
}

// RecordLedger ingests a run's ledger: one model-call increment per
// entry plus token, cost, and savings totals.
func (m *Metrics) RecordLedger(led *ledger.Ledger) {
	if m == nil || led == nil {
		return
	}
	for _, e := range led.Entries() {
		m.ModelCallCounter.WithLabelValues(e.Provider, e.Purpose).Inc()
		if e.InputTokens > 0 {
			m.TokensUsed.WithLabelValues(e.Provider, e.Purpose, "input").Add(float64(e.InputTokens))
		}
		if e.OutputTokens > 0 {
			m.TokensUsed.WithLabelValues(e.Provider, e.Purpose, "output").Add(float64(e.OutputTokens))
		}
	}
	if cost := led.CloudCost(); cost > 0 {
		m.CloudCost.Add(cost)
	}
	if saved := led.Savings().TokensSaved; saved > 0 {
		m.CompactionSavings.Add(float64(saved))
	}
}

// RecordToolCall books one tool invocation.
func (m *Metrics) RecordToolCall(toolName string) {
	if m == nil {
		return
	}
	m.ToolCallCounter.WithLabelValues(toolName).Inc()
}

// RecordStall books one stale-loop abort.
func (m *Metrics) RecordStall() {
	if m == nil {
		return
	}
	m.StallCounter.Inc()
}

// RecordScheduledRun books one scheduler-triggered execution.
func (m *Metrics) RecordScheduledRun(status string) {
	if m == nil {
		return
	}
	m.ScheduledRunCounter.WithLabelValues(status).Inc()
}
