// Package agent implements the React loop that drives cloud and
// on-device model execution: iterative model calls, tool dispatch,
// context compaction, and stale-loop detection.
package agent

import (
	"context"

	"github.com/voltbot/volt/pkg/models"
)

// Role is a conversation message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of conversation history.
type Message struct {
	Role        Role
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// StopReason says why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopError     StopReason = "error"
)

// ToolSpec describes a tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      []byte
}

// ModelRequest is one completion call.
type ModelRequest struct {
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// ModelResponse is the model's reply for one iteration.
type ModelResponse struct {
	Text       string
	ToolCalls  []models.ToolCall
	StopReason StopReason
	Usage      models.TokenUsage
}

// ModelClient is a tool-capable completion model.
type ModelClient interface {
	// Provider returns the ledger provider label.
	Provider() string

	// Model returns the model identifier for pricing.
	Model() string

	// Generate runs one non-streaming completion.
	Generate(ctx context.Context, req *ModelRequest) (*ModelResponse, error)
}
