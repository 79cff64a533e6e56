// Package models defines the shared types exchanged between the volt
// runtime components: tool calls and results, progress events, and the
// BotResult returned by every orchestrator run.
package models

import (
	"encoding/json"
	"time"
)

// ToolCall represents a tool invocation requested by a model.
type ToolCall struct {
	// ID is the provider-assigned identifier for this call.
	ID string `json:"id"`

	// Name is the registered tool name.
	Name string `json:"name"`

	// Input is the JSON-encoded argument map.
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolResult is the outcome of executing a single tool call.
type ToolResult struct {
	// ToolCallID correlates the result with its originating call.
	ToolCallID string `json:"tool_call_id"`

	// Content is the textual payload. The runtime does not interpret it
	// beyond its length.
	Content string `json:"content"`

	// IsError marks the result as an error the model may recover from.
	IsError bool `json:"is_error,omitempty"`
}

// ToolCallRecord is a completed call/result pair as recorded by a run.
type ToolCallRecord struct {
	Tool     string          `json:"tool"`
	Input    json.RawMessage `json:"input,omitempty"`
	IsError  bool            `json:"is_error,omitempty"`
	Duration time.Duration   `json:"duration,omitempty"`
}

// ProgressStage identifies a point in the per-request pipeline.
type ProgressStage string

// Progress stages, in rough pipeline order.
const (
	StageStart            ProgressStage = "start"
	StageRouted           ProgressStage = "routed"
	StageAnalyzing        ProgressStage = "analyzing"
	StageAnalyzed         ProgressStage = "analyzed"
	StageSkills           ProgressStage = "skills"
	StageSelected         ProgressStage = "selected"
	StageExecuting        ProgressStage = "executing"
	StageAgentStart       ProgressStage = "agent_start"
	StageIteration        ProgressStage = "iteration"
	StageIterationSummary ProgressStage = "iteration_summary"
	StageTool             ProgressStage = "tool"
	StageBashCall         ProgressStage = "bash_call"
	StageAgentComplete    ProgressStage = "agent_complete"
	StageSummaryBefore    ProgressStage = "summary_before"
	StageSummaryAfter     ProgressStage = "summary_after"
	StageComplete         ProgressStage = "complete"
	StageError            ProgressStage = "error"
)

// ProgressEvent is emitted by the orchestrator and driver as a run
// advances. Events are advisory: sinks may drop them.
type ProgressEvent struct {
	Stage   ProgressStage `json:"stage"`
	Message string        `json:"message"`
}

// ProgressSink receives progress events for one run. Emit must not
// block; slow consumers should buffer or drop.
type ProgressSink interface {
	Emit(event ProgressEvent)
}

// SinkFunc adapts a function to the ProgressSink interface.
type SinkFunc func(event ProgressEvent)

// Emit implements ProgressSink.
func (f SinkFunc) Emit(event ProgressEvent) { f(event) }

// NullSink discards all progress events.
type NullSink struct{}

// Emit implements ProgressSink.
func (NullSink) Emit(ProgressEvent) {}

// TokenUsage summarises token consumption for a run or a single call.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Total returns the combined token count.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates another usage record into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// BotResult is the user-visible outcome of one orchestrator run.
// On success Answer is populated; on failure Error is populated.
type BotResult struct {
	Success      bool             `json:"success"`
	Answer       string           `json:"answer,omitempty"`
	Error        string           `json:"error,omitempty"`
	Iterations   int              `json:"iterations"`
	Truncated    bool             `json:"truncated,omitempty"`
	ToolCalls    []ToolCallRecord `json:"tool_calls,omitempty"`
	TokenUsage   TokenUsage       `json:"token_usage"`
	Analysis     map[string]any   `json:"analysis,omitempty"`
	LedgerReport string           `json:"ledger_report,omitempty"`
	CreatedFiles []string         `json:"created_files,omitempty"`
}
