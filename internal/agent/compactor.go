package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voltbot/volt/internal/ledger"
	"github.com/voltbot/volt/internal/smallmodel"
)

// Context window defaults.
const (
	// DefaultContextWindow is the virtual token limit, independent of
	// the model's real window.
	DefaultContextWindow = 80_000

	// HighWaterRatio triggers compaction.
	HighWaterRatio = 0.8

	// LowWaterRatio is the target after compaction.
	LowWaterRatio = 0.5

	// omittedMarker replaces dropped history in the deterministic
	// fallback.
	omittedMarker = "[earlier context omitted]"
)

// Compactor shrinks conversation history when it outgrows the window.
type Compactor interface {
	// ShouldCompact reports whether the history needs compaction.
	ShouldCompact(history []Message, tokens int) bool

	// Compact returns a shorter history and the bytes saved.
	Compact(ctx context.Context, history []Message) ([]Message, int)
}

// ContextCompactor summarises the oldest messages through the small
// model, falling back to deterministic truncation when that fails.
// The system prompt is held outside the history and is never touched.
type ContextCompactor struct {
	client smallmodel.Client
	led    *ledger.Ledger
	logger *slog.Logger
	window int
}

// NewContextCompactor creates a compactor. A non-positive window takes
// the default.
func NewContextCompactor(client smallmodel.Client, led *ledger.Ledger, window int) *ContextCompactor {
	if window <= 0 {
		window = DefaultContextWindow
	}
	return &ContextCompactor{
		client: client,
		led:    led,
		logger: slog.Default().With("component", "compactor"),
		window: window,
	}
}

// EstimateTokens approximates history size at 4 characters per token.
func EstimateTokens(history []Message) int {
	total := 0
	for _, msg := range history {
		total += len(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += len(tc.Name) + len(tc.Input)
		}
		for _, tr := range msg.ToolResults {
			total += len(tr.Content)
		}
	}
	return total / ledger.CharsPerToken
}

// ShouldCompact reports whether tokens passed the high-water mark.
func (c *ContextCompactor) ShouldCompact(_ []Message, tokens int) bool {
	return tokens >= int(float64(c.window)*HighWaterRatio)
}

// Compact replaces the oldest prefix with a single summary message.
// The latest user message and the latest tool result are never part of
// the prefix.
func (c *ContextCompactor) Compact(ctx context.Context, history []Message) ([]Message, int) {
	prefixEnd := c.prefixEnd(history)
	if prefixEnd < 2 {
		return history, 0
	}
	prefix := history[:prefixEnd]
	prefixBytes := historyBytes(prefix)

	summary, usage := c.summarize(ctx, prefix)
	if summary == "" {
		return c.fallback(history, prefixEnd)
	}

	compacted := make([]Message, 0, len(history)-prefixEnd+1)
	compacted = append(compacted, Message{
		Role:    RoleAssistant,
		Content: "Summary of earlier conversation: " + summary,
	})
	compacted = append(compacted, history[prefixEnd:]...)

	saved := prefixBytes - len(summary)
	if saved < 0 {
		saved = 0
	}
	if c.led != nil {
		c.led.Record(c.client.Provider(), ledger.PurposeCompaction,
			int64(usage.InputTokens), int64(usage.OutputTokens),
			ledger.RecordOptions{Model: c.client.Model(), BytesSaved: int64(saved)})
	}
	return compacted, saved
}

// prefixEnd finds how many leading messages can go while bringing the
// total under the low-water mark. Both the latest user message and the
// latest tool result stay out of the prefix, so it ends at whichever
// of the two comes first.
func (c *ContextCompactor) prefixEnd(history []Message) int {
	lastUser, lastResult := len(history), len(history)
	for i := len(history) - 1; i >= 0; i-- {
		if lastUser == len(history) && history[i].Role == RoleUser {
			lastUser = i
		}
		if lastResult == len(history) && len(history[i].ToolResults) > 0 {
			lastResult = i
		}
		if lastUser < len(history) && lastResult < len(history) {
			break
		}
	}
	lastProtected := lastUser
	if lastResult < lastProtected {
		lastProtected = lastResult
	}

	target := int(float64(c.window) * LowWaterRatio)
	total := EstimateTokens(history)

	end := 0
	for end < lastProtected && total > target {
		total -= EstimateTokens(history[end : end+1])
		end++
	}
	return end
}

func (c *ContextCompactor) summarize(ctx context.Context, prefix []Message) (string, smallmodel.Usage) {
	if c.client == nil || !c.client.Available() {
		return "", smallmodel.Usage{}
	}

	var b strings.Builder
	for _, msg := range prefix {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		for _, tc := range msg.ToolCalls {
			b.WriteString("\n  called ")
			b.WriteString(tc.Name)
			b.WriteString(" ")
			b.Write(tc.Input)
		}
		for _, tr := range msg.ToolResults {
			b.WriteString("\n  result: ")
			b.WriteString(tr.Content)
		}
		b.WriteString("\n")
	}

	res, err := c.client.Generate(ctx, smallmodel.Request{
		System:    "Summarise this agent conversation. Keep goals, decisions, file paths, and unresolved errors.",
		Prompt:    b.String(),
		MaxTokens: 512,
	})
	if err != nil || res == nil {
		if err != nil {
			c.logger.Warn("compaction summary failed, falling back to truncation", "error", err)
		}
		return "", smallmodel.Usage{}
	}
	return strings.TrimSpace(res.Text), smallmodel.Usage{
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
	}
}

// fallback drops the middle half of the prefix and marks the gap.
func (c *ContextCompactor) fallback(history []Message, prefixEnd int) ([]Message, int) {
	quarter := prefixEnd / 4
	dropFrom, dropTo := quarter, prefixEnd-quarter
	if dropTo <= dropFrom {
		return history, 0
	}
	dropped := historyBytes(history[dropFrom:dropTo])

	compacted := make([]Message, 0, len(history)-(dropTo-dropFrom)+1)
	compacted = append(compacted, history[:dropFrom]...)
	compacted = append(compacted, Message{Role: RoleAssistant, Content: omittedMarker})
	compacted = append(compacted, history[dropTo:]...)

	if c.led != nil {
		c.led.Record(ledger.ProviderNative, ledger.PurposeCompaction, 0, 0,
			ledger.RecordOptions{BytesSaved: int64(dropped)})
	}
	return compacted, dropped
}

func historyBytes(msgs []Message) int {
	total := 0
	for _, msg := range msgs {
		total += len(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += len(tc.Name) + len(tc.Input)
		}
		for _, tr := range msg.ToolResults {
			total += len(tr.Content)
		}
	}
	return total
}
