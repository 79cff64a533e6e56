// Package ledger provides per-run token and cost accounting. A Ledger
// records every model call made during one orchestrator run, keyed by
// provider and purpose, and derives totals, cost estimates, and
// summarisation savings. Ledgers are owned by a single run and are not
// safe for concurrent use.
package ledger

import (
	"time"

	"github.com/voltbot/volt/pkg/models"
)

// Provider labels used for ledger entries. The label is a property of
// the model client variant, not of the call site.
const (
	ProviderOnDevice    = "on_device"
	ProviderLocalRunner = "local_runner"
	ProviderCloudFast   = "cloud_fast"
	ProviderCloudStrong = "cloud_strong"
	ProviderNative      = "native"
)

// Purpose labels for common call sites.
const (
	PurposeAgent      = "agent"
	PurposeAnalysis   = "analysis"
	PurposeFilter     = "skill_filter"
	PurposeSummary    = "summary"
	PurposeCompaction = "compaction"
	PurposeOptimizer  = "prompt_optimizer"
	PurposeRouterGen  = "router_generation"
)

// CharsPerToken is the fixed ratio used to estimate tokens saved from
// bytes removed by summarisation.
const CharsPerToken = 4

// Entry is one booked model call.
type Entry struct {
	Provider     string    `json:"provider"`
	Model        string    `json:"model,omitempty"`
	Purpose      string    `json:"purpose"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	BytesSaved   int64     `json:"bytes_saved,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Totals aggregates token counts and cost for a grouping key.
type Totals struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	Calls        int     `json:"calls"`
}

// Total returns the combined token count.
func (t Totals) Total() int64 {
	return t.InputTokens + t.OutputTokens
}

func (t *Totals) add(e Entry) {
	t.InputTokens += e.InputTokens
	t.OutputTokens += e.OutputTokens
	t.Cost += e.Cost
	t.Calls++
}

// Savings reports what summarisation removed from the context.
type Savings struct {
	BytesSaved  int64 `json:"bytes_saved"`
	TokensSaved int64 `json:"tokens_saved"`
	Calls       int   `json:"calls"`
}

// Ledger is an append-only record of model calls for one run.
type Ledger struct {
	prices  PriceTable
	entries []Entry
}

// New creates a ledger using the given price table. A nil table uses
// the built-in default rates.
func New(prices PriceTable) *Ledger {
	if prices == nil {
		prices = DefaultPrices()
	}
	return &Ledger{prices: prices}
}

// RecordOptions carries the optional fields of a ledger entry.
type RecordOptions struct {
	// Model selects the strong-cloud sub-tier and is informational for
	// other providers.
	Model string

	// Cost overrides the computed cost when >= 0 is supplied explicitly.
	Cost float64

	// HasCost marks Cost as supplied by the caller.
	HasCost bool

	// BytesSaved is set by summarisation calls that shrank a payload.
	BytesSaved int64
}

// Record books one model call.
func (l *Ledger) Record(provider, purpose string, inputTokens, outputTokens int64, opts RecordOptions) {
	e := Entry{
		Provider:     provider,
		Model:        opts.Model,
		Purpose:      purpose,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		BytesSaved:   opts.BytesSaved,
		Timestamp:    time.Now(),
	}
	if opts.HasCost {
		e.Cost = opts.Cost
	} else {
		e.Cost = l.prices.Estimate(provider, opts.Model, inputTokens, outputTokens)
	}
	l.entries = append(l.entries, e)
}

// Entries returns the booked entries in record order.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// TotalsByProvider groups totals by provider label.
func (l *Ledger) TotalsByProvider() map[string]Totals {
	out := make(map[string]Totals)
	for _, e := range l.entries {
		t := out[e.Provider]
		t.add(e)
		out[e.Provider] = t
	}
	return out
}

// TotalsByPurpose groups totals by purpose label.
func (l *Ledger) TotalsByPurpose() map[string]Totals {
	out := make(map[string]Totals)
	for _, e := range l.entries {
		t := out[e.Purpose]
		t.add(e)
		out[e.Purpose] = t
	}
	return out
}

// OverallTotals aggregates across every entry.
func (l *Ledger) OverallTotals() Totals {
	var t Totals
	for _, e := range l.entries {
		t.add(e)
	}
	return t
}

// CloudCost returns the combined cost of the cloud providers only.
func (l *Ledger) CloudCost() float64 {
	var cost float64
	for _, e := range l.entries {
		if e.Provider == ProviderCloudFast || e.Provider == ProviderCloudStrong {
			cost += e.Cost
		}
	}
	return cost
}

// Savings aggregates summarisation savings across the run.
func (l *Ledger) Savings() Savings {
	var s Savings
	for _, e := range l.entries {
		if e.BytesSaved > 0 {
			s.BytesSaved += e.BytesSaved
			s.TokensSaved += e.BytesSaved / CharsPerToken
			s.Calls++
		}
	}
	return s
}

// Usage returns the overall totals as the shared TokenUsage type.
func (l *Ledger) Usage() models.TokenUsage {
	t := l.OverallTotals()
	return models.TokenUsage{InputTokens: t.InputTokens, OutputTokens: t.OutputTokens}
}
