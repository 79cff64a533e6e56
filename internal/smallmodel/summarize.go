package smallmodel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voltbot/volt/internal/ledger"
)

// Summariser thresholds, in characters of tool output.
const (
	// DefaultSkipThreshold is the size below which summarisation is
	// never considered.
	DefaultSkipThreshold = 500

	// DefaultSummarizeThreshold is the size above which the result is
	// replaced with a summary.
	DefaultSummarizeThreshold = 4000
)

// ResultSummarizer condenses oversized tool results before they enter
// the conversation history.
type ResultSummarizer struct {
	client        Client
	led           *ledger.Ledger
	logger        *slog.Logger
	skipBelow     int
	summarizeOver int
}

// SummarizerOption configures a ResultSummarizer.
type SummarizerOption func(*ResultSummarizer)

// WithThresholds overrides the skip and summarize thresholds.
func WithThresholds(skipBelow, summarizeOver int) SummarizerOption {
	return func(s *ResultSummarizer) {
		s.skipBelow = skipBelow
		s.summarizeOver = summarizeOver
	}
}

// NewResultSummarizer creates a summariser bound to a run ledger.
func NewResultSummarizer(client Client, led *ledger.Ledger, opts ...SummarizerOption) *ResultSummarizer {
	s := &ResultSummarizer{
		client:        client,
		led:           led,
		logger:        slog.Default().With("component", "result-summarizer"),
		skipBelow:     DefaultSkipThreshold,
		summarizeOver: DefaultSummarizeThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const summarizeSystem = `You condense tool output. Keep every fact, path, number,
and error message the agent could need. Drop repetition and noise.`

// Summarize returns a compact replacement for a tool result, or the
// original when it is small enough or the model is unavailable. The
// bytes saved are recorded in the ledger.
func (s *ResultSummarizer) Summarize(ctx context.Context, tool, input, result string) string {
	if len(result) < s.skipBelow || len(result) <= s.summarizeOver {
		return result
	}
	if s.client == nil || !s.client.Available() {
		return result
	}

	prompt := fmt.Sprintf("Tool: %s\nInput: %s\n\nOutput:\n%s", tool, input, result)
	res, err := s.client.Generate(ctx, Request{
		System:    summarizeSystem,
		Prompt:    prompt,
		MaxTokens: 512,
	})
	if err != nil || res == nil {
		if err != nil {
			s.logger.Warn("summarisation failed, keeping full result", "tool", tool, "error", err)
		}
		return result
	}

	summary := strings.TrimSpace(res.Text)
	if summary == "" || len(summary) >= len(result) {
		return result
	}

	if s.led != nil {
		s.led.Record(s.client.Provider(), ledger.PurposeSummary,
			int64(res.Usage.InputTokens), int64(res.Usage.OutputTokens),
			ledger.RecordOptions{Model: s.client.Model(), BytesSaved: int64(len(result) - len(summary))})
	}
	return "[summarized] " + summary
}
