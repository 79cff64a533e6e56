package smallmodel

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voltbot/volt/internal/ledger"
	"github.com/voltbot/volt/internal/skills"
)

// RelevanceFilter asks the small model which candidate skills are
// semantically relevant to a request. On any failure it passes the
// candidates through unfiltered; filtering must never over-prune.
type RelevanceFilter struct {
	client Client
	led    *ledger.Ledger
	logger *slog.Logger
}

// NewRelevanceFilter creates a filter bound to a run ledger.
func NewRelevanceFilter(client Client, led *ledger.Ledger) *RelevanceFilter {
	return &RelevanceFilter{
		client: client,
		led:    led,
		logger: slog.Default().With("component", "relevance-filter"),
	}
}

const filterSystem = `You select which skills are relevant to a user request.
Reply with the names of the relevant skills, one per line. Reply NONE if none apply.`

// Filter returns the subset of candidates the model judges relevant.
func (f *RelevanceFilter) Filter(ctx context.Context, request string, candidates []skills.Candidate) []skills.Candidate {
	if f.client == nil || !f.client.Available() || len(candidates) == 0 {
		return candidates
	}

	var b strings.Builder
	b.WriteString("Request: ")
	b.WriteString(request)
	b.WriteString("\n\nCandidate skills:\n")
	for _, c := range candidates {
		b.WriteString("- ")
		b.WriteString(c.Skill.Name)
		b.WriteString(": ")
		b.WriteString(c.Skill.Description)
		b.WriteString("\n")
	}

	res, err := f.client.Generate(ctx, Request{
		System:    filterSystem,
		Prompt:    b.String(),
		MaxTokens: 256,
	})
	if err != nil || res == nil {
		if err != nil {
			f.logger.Warn("relevance filter failed, passing through", "error", err)
		}
		return candidates
	}
	record(f.led, f.client, ledger.PurposeFilter, res)

	if strings.EqualFold(strings.TrimSpace(res.Text), "NONE") {
		return nil
	}

	kept := make(map[string]bool)
	for _, line := range strings.Split(res.Text, "\n") {
		name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if name != "" {
			kept[strings.ToLower(name)] = true
		}
	}

	var out []skills.Candidate
	for _, c := range candidates {
		if kept[strings.ToLower(c.Skill.Name)] {
			out = append(out, c)
		}
	}
	// A response that names no known skill is treated as a failed
	// filter, not an empty one.
	if len(out) == 0 {
		return candidates
	}
	return out
}

// record writes a ledger entry for a successful generation.
func record(led *ledger.Ledger, client Client, purpose string, res *Result) {
	if led == nil || res == nil {
		return
	}
	led.Record(client.Provider(), purpose, int64(res.Usage.InputTokens), int64(res.Usage.OutputTokens),
		ledger.RecordOptions{Model: client.Model()})
}
