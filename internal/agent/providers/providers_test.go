package providers

import (
	"encoding/json"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voltbot/volt/internal/agent"
	"github.com/voltbot/volt/pkg/models"
)

func TestNewAnthropicClientValidation(t *testing.T) {
	if _, err := NewAnthropicClient(AnthropicConfig{Model: "m"}); err == nil {
		t.Error("missing API key accepted")
	}
	if _, err := NewAnthropicClient(AnthropicConfig{APIKey: "k"}); err == nil {
		t.Error("missing model accepted")
	}
	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "k", Model: "m", Provider: "cloud_strong"})
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}
	if c.Provider() != "cloud_strong" || c.Model() != "m" {
		t.Errorf("labels = %s/%s", c.Provider(), c.Model())
	}
}

func TestConvertMessagesRejectsBadToolInput(t *testing.T) {
	_, err := convertMessages([]agent.Message{{
		Role:      agent.RoleAssistant,
		ToolCalls: []models.ToolCall{{ID: "1", Name: "bash", Input: json.RawMessage(`not json`)}},
	}})
	if err == nil {
		t.Fatal("invalid tool input accepted")
	}
}

func TestConvertMessagesSkipsSystemAndEmpty(t *testing.T) {
	out, err := convertMessages([]agent.Message{
		{Role: agent.RoleSystem, Content: "sys"},
		{Role: agent.RoleUser, Content: "hi"},
		{Role: agent.RoleAssistant},
	})
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("messages = %d, want 1", len(out))
	}
}

func TestIsRetryable(t *testing.T) {
	if isRetryable(nil) {
		t.Error("nil error retryable")
	}
	if !isRetryable(errors.New("request timeout")) {
		t.Error("timeout not retryable")
	}
	if isRetryable(&agent.AuthError{Provider: "cloud_strong", Cause: errors.New("401")}) {
		t.Error("auth error retryable")
	}
}

func TestConvertChatMessages(t *testing.T) {
	out := convertChatMessages("sys", []agent.Message{
		{Role: agent.RoleUser, Content: "hi"},
		{Role: agent.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "bash", Input: json.RawMessage(`{"command":"ls"}`)},
		}},
		{Role: agent.RoleTool, ToolResults: []models.ToolResult{
			{ToolCallID: "c1", Content: "file.txt"},
		}},
	})

	if len(out) != 4 {
		t.Fatalf("messages = %d, want 4", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleSystem || out[0].Content != "sys" {
		t.Errorf("system message = %+v", out[0])
	}
	if len(out[2].ToolCalls) != 1 || out[2].ToolCalls[0].Function.Name != "bash" {
		t.Errorf("assistant tool calls = %+v", out[2].ToolCalls)
	}
	if out[3].Role != openai.ChatMessageRoleTool || out[3].ToolCallID != "c1" {
		t.Errorf("tool result message = %+v", out[3])
	}
}

func TestConvertChatTools(t *testing.T) {
	tools, err := convertChatTools([]agent.ToolSpec{{
		Name:        "bash",
		Description: "run a command",
		Schema:      []byte(`{"type":"object","properties":{"command":{"type":"string"}}}`),
	}})
	if err != nil {
		t.Fatalf("convertChatTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Function.Name != "bash" {
		t.Errorf("tools = %+v", tools)
	}

	if _, err := convertChatTools([]agent.ToolSpec{{Name: "bad", Schema: []byte(`x`)}}); err == nil {
		t.Error("invalid schema accepted")
	}
}
