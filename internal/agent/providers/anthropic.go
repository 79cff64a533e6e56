// Package providers implements agent.ModelClient adapters for the
// cloud tiers and the local OpenAI-compatible runner.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/voltbot/volt/internal/agent"
	"github.com/voltbot/volt/pkg/models"
)

// DefaultMaxTokens caps generations that do not declare a limit.
const DefaultMaxTokens = 4096

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	// APIKey is required.
	APIKey string

	// BaseURL overrides the default API endpoint.
	BaseURL string

	// Model is the model identifier sent with every request.
	Model string

	// Provider is the ledger provider label, cloud_fast or cloud_strong.
	Provider string

	// MaxRetries bounds retry attempts for transient failures. Default 3.
	MaxRetries int

	// RetryDelay is the backoff base. Default 1s.
	RetryDelay time.Duration
}

// AnthropicClient is a tool-capable Anthropic completion client. Safe
// for concurrent use.
type AnthropicClient struct {
	client     anthropic.Client
	model      string
	provider   string
	maxRetries int
	retryDelay time.Duration
}

// NewAnthropicClient creates a client from cfg.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		client:     anthropic.NewClient(options...),
		model:      cfg.Model,
		provider:   cfg.Provider,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// Provider returns the ledger provider label.
func (c *AnthropicClient) Provider() string { return c.provider }

// Model returns the configured model identifier.
func (c *AnthropicClient) Model() string { return c.model }

// Generate runs one non-streaming completion with retries on transient
// failures.
func (c *AnthropicClient) Generate(ctx context.Context, req *agent.ModelRequest) (*agent.ModelResponse, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	var msg *anthropic.Message
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		msg, err = c.client.Messages.New(ctx, params)
		if err == nil {
			break
		}
		wrapped := c.wrapError(err)
		if !isRetryable(wrapped) {
			return nil, wrapped
		}
		if attempt == c.maxRetries {
			return nil, fmt.Errorf("anthropic: max retries exceeded: %w", wrapped)
		}
		backoff := c.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return convertResponse(msg), nil
}

func (c *AnthropicClient) buildParams(req *agent.ModelRequest) (anthropic.MessageNewParams, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

// convertMessages maps driver history onto Anthropic content blocks.
// Tool results ride in user messages, tool calls in assistant messages.
func convertMessages(messages []agent.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == agent.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(tc.Input, &input); err != nil {
				return nil, fmt.Errorf("anthropic: invalid tool call input for %s: %w", tc.Name, err)
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == agent.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertTools(specs []agent.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, spec := range specs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(spec.Schema, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: %w", spec.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: missing tool definition", spec.Name)
		}
		param.OfTool.Description = anthropic.String(spec.Description)
		result = append(result, param)
	}
	return result, nil
}

func convertResponse(msg *anthropic.Message) *agent.ModelResponse {
	resp := &agent.ModelResponse{
		Usage: models.TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:    tu.ID,
				Name:  tu.Name,
				Input: json.RawMessage(tu.Input),
			})
		}
	}
	resp.Text = text.String()

	switch msg.StopReason {
	case anthropic.StopReasonToolUse:
		resp.StopReason = agent.StopToolUse
	case anthropic.StopReasonMaxTokens:
		resp.StopReason = agent.StopMaxTokens
	default:
		resp.StopReason = agent.StopEndTurn
	}
	return resp
}

func (c *AnthropicClient) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return &agent.AuthError{Provider: c.provider, Cause: err}
		}
	}
	return err
}

// isRetryable classifies transient failures: rate limits, server
// errors, timeouts, and connection resets.
func isRetryable(err error) bool {
	if err == nil || agent.IsAuthError(err) {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	msg := err.Error()
	for _, marker := range []string{
		"rate_limit", "too many requests",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
