package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/voltbot/volt/internal/ledger"
	"github.com/voltbot/volt/internal/smallmodel"
	"github.com/voltbot/volt/pkg/models"
)

// stubSmall is a canned smallmodel.Client for compactor and driver
// tests.
type stubSmall struct {
	available bool
	text      string
	err       error
	calls     int
}

func (s *stubSmall) Available() bool { return s.available }
func (s *stubSmall) Provider() string {
	return ledger.ProviderOnDevice
}
func (s *stubSmall) Model() string { return "stub" }
func (s *stubSmall) Generate(_ context.Context, _ smallmodel.Request) (*smallmodel.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.text == "" {
		return nil, nil
	}
	return &smallmodel.Result{
		Text:  s.text,
		Usage: smallmodel.Usage{InputTokens: 40, OutputTokens: 10},
	}, nil
}

// longHistory builds a history whose oldest messages are padding and
// whose tail holds the latest user message.
func longHistory(msgBytes, count int) []Message {
	pad := strings.Repeat("x", msgBytes)
	history := []Message{{Role: RoleUser, Content: "original request"}}
	for i := 0; i < count; i++ {
		history = append(history,
			Message{Role: RoleAssistant, Content: pad},
			Message{Role: RoleTool, ToolResults: []models.ToolResult{{ToolCallID: "t", Content: pad}}},
		)
	}
	history = append(history, Message{Role: RoleUser, Content: "latest question"})
	return history
}

func TestEstimateTokens(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: strings.Repeat("a", 400)},
		{Role: RoleAssistant, ToolCalls: []models.ToolCall{{Name: "bash", Input: []byte(`{"command":"ls"}`)}}},
		{Role: RoleTool, ToolResults: []models.ToolResult{{Content: strings.Repeat("b", 80)}}},
	}
	want := (400 + len("bash") + len(`{"command":"ls"}`) + 80) / 4
	if got := EstimateTokens(history); got != want {
		t.Errorf("EstimateTokens = %d, want %d", got, want)
	}
}

func TestShouldCompactHighWater(t *testing.T) {
	c := NewContextCompactor(nil, nil, 1000)

	if c.ShouldCompact(nil, 799) {
		t.Error("compacted below the high-water mark")
	}
	if !c.ShouldCompact(nil, 800) {
		t.Error("did not compact at the high-water mark")
	}
}

func TestCompactSummarizesPrefix(t *testing.T) {
	client := &stubSmall{available: true, text: "did some work on /tmp/report.txt"}
	led := ledger.New(nil)
	c := NewContextCompactor(client, led, 100)

	history := longHistory(200, 6)
	compacted, saved := c.Compact(context.Background(), history)

	if len(compacted) >= len(history) {
		t.Fatalf("history did not shrink: %d -> %d", len(history), len(compacted))
	}
	if saved <= 0 {
		t.Errorf("saved = %d, want > 0", saved)
	}
	first := compacted[0]
	if first.Role != RoleAssistant || !strings.Contains(first.Content, "Summary of earlier conversation") {
		t.Errorf("first message is not the summary: %+v", first)
	}
	last := compacted[len(compacted)-1]
	if last.Role != RoleUser || last.Content != "latest question" {
		t.Errorf("latest user message was not preserved: %+v", last)
	}

	entries := led.Entries()
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Purpose != ledger.PurposeCompaction {
		t.Errorf("purpose = %q, want %q", e.Purpose, ledger.PurposeCompaction)
	}
	if e.BytesSaved != int64(saved) {
		t.Errorf("BytesSaved = %d, want %d", e.BytesSaved, saved)
	}
}

func TestCompactProtectsLatestUserAndToolResult(t *testing.T) {
	client := &stubSmall{available: true, text: "summary"}
	c := NewContextCompactor(client, nil, 100)

	pad := strings.Repeat("x", 400)
	history := []Message{
		{Role: RoleAssistant, Content: pad},
		{Role: RoleAssistant, Content: pad},
		{Role: RoleAssistant, Content: pad},
		{Role: RoleUser, Content: "follow-up question"},
		{Role: RoleTool, ToolResults: []models.ToolResult{{ToolCallID: "last", Content: "latest result"}}},
	}

	compacted, saved := c.Compact(context.Background(), history)
	if saved <= 0 {
		t.Fatalf("saved = %d, want > 0", saved)
	}
	last := compacted[len(compacted)-1]
	if len(last.ToolResults) != 1 || last.ToolResults[0].ToolCallID != "last" {
		t.Errorf("latest tool result was not preserved: %+v", last)
	}
	user := compacted[len(compacted)-2]
	if user.Role != RoleUser || user.Content != "follow-up question" {
		t.Errorf("latest user message was not preserved: %+v", user)
	}
}

func TestCompactNeverDropsOnlyUserMessage(t *testing.T) {
	client := &stubSmall{available: true, text: "summary"}
	c := NewContextCompactor(client, nil, 100)

	// The run's single user message leads the history; everything after
	// it is off limits, so compaction has nothing to take.
	pad := strings.Repeat("x", 400)
	history := []Message{
		{Role: RoleUser, Content: "the original request"},
		{Role: RoleAssistant, Content: pad},
		{Role: RoleTool, ToolResults: []models.ToolResult{{ToolCallID: "a", Content: pad}}},
		{Role: RoleAssistant, Content: pad},
		{Role: RoleTool, ToolResults: []models.ToolResult{{ToolCallID: "b", Content: pad}}},
	}

	compacted, saved := c.Compact(context.Background(), history)
	if saved != 0 || len(compacted) != len(history) {
		t.Fatalf("protected history changed: %d messages, %d saved", len(compacted), saved)
	}
	if compacted[0].Role != RoleUser || compacted[0].Content != "the original request" {
		t.Errorf("user message lost: %+v", compacted[0])
	}
	if client.calls != 0 {
		t.Errorf("summarizer called %d times with nothing to compact", client.calls)
	}
}

func TestCompactFallbackOnModelFailure(t *testing.T) {
	client := &stubSmall{available: true, err: errors.New("runner down")}
	led := ledger.New(nil)
	c := NewContextCompactor(client, led, 100)

	history := longHistory(200, 6)
	compacted, saved := c.Compact(context.Background(), history)

	if saved <= 0 {
		t.Fatalf("fallback saved = %d, want > 0", saved)
	}
	var marked bool
	for _, msg := range compacted {
		if msg.Content == omittedMarker {
			marked = true
		}
	}
	if !marked {
		t.Error("fallback did not insert the omitted marker")
	}
	last := compacted[len(compacted)-1]
	if last.Content != "latest question" {
		t.Errorf("latest user message was not preserved: %+v", last)
	}

	entries := led.Entries()
	if len(entries) != 1 || entries[0].Provider != ledger.ProviderNative {
		t.Fatalf("fallback ledger entries = %+v, want one native entry", entries)
	}
}

func TestCompactFallbackWhenModelUnavailable(t *testing.T) {
	client := &stubSmall{available: false}
	c := NewContextCompactor(client, nil, 100)

	compacted, _ := c.Compact(context.Background(), longHistory(200, 6))
	if client.calls != 0 {
		t.Errorf("unavailable client was called %d times", client.calls)
	}
	var marked bool
	for _, msg := range compacted {
		if msg.Content == omittedMarker {
			marked = true
		}
	}
	if !marked {
		t.Error("expected deterministic truncation")
	}
}

func TestCompactShortHistoryUntouched(t *testing.T) {
	c := NewContextCompactor(&stubSmall{available: true, text: "s"}, nil, 100)

	history := []Message{{Role: RoleUser, Content: "hi"}}
	compacted, saved := c.Compact(context.Background(), history)
	if saved != 0 || len(compacted) != 1 {
		t.Errorf("short history changed: %d messages, %d saved", len(compacted), saved)
	}
}
