package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voltbot/volt/internal/agent"
	"github.com/voltbot/volt/internal/ledger"
	"github.com/voltbot/volt/pkg/models"
)

// OpenAICompatConfig configures an OpenAICompatClient.
type OpenAICompatConfig struct {
	// BaseURL points at the OpenAI-compatible endpoint, e.g. a local
	// Ollama server. Required.
	BaseURL string

	// APIKey is optional; local runners usually ignore it.
	APIKey string

	// Model is the model identifier sent with every request.
	Model string

	// Provider is the ledger provider label. Defaults to local_runner.
	Provider string
}

// OpenAICompatClient is a tool-capable client for OpenAI-compatible
// servers, used for the local runner tier. Safe for concurrent use.
type OpenAICompatClient struct {
	client   *openai.Client
	model    string
	provider string
}

// NewOpenAICompatClient creates a client from cfg.
func NewOpenAICompatClient(cfg OpenAICompatConfig) (*OpenAICompatClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("openai-compat: base URL is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai-compat: model is required")
	}
	if cfg.Provider == "" {
		cfg.Provider = ledger.ProviderLocalRunner
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	return &OpenAICompatClient{
		client:   openai.NewClientWithConfig(oc),
		model:    cfg.Model,
		provider: cfg.Provider,
	}, nil
}

// Provider returns the ledger provider label.
func (c *OpenAICompatClient) Provider() string { return c.provider }

// Model returns the configured model identifier.
func (c *OpenAICompatClient) Model() string { return c.model }

// Generate runs one non-streaming chat completion.
func (c *OpenAICompatClient) Generate(ctx context.Context, req *agent.ModelRequest) (*agent.ModelResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: convertChatMessages(req.System, req.Messages),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		tools, err := convertChatTools(req.Tools)
		if err != nil {
			return nil, err
		}
		chatReq.Tools = tools
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403) {
			return nil, &agent.AuthError{Provider: c.provider, Cause: err}
		}
		return nil, fmt.Errorf("openai-compat: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai-compat: empty response")
	}

	choice := resp.Choices[0]
	out := &agent.ModelResponse{
		Text: choice.Message.Content,
		Usage: models.TokenUsage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		input := strings.TrimSpace(tc.Function.Arguments)
		if input == "" {
			input = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(input),
		})
	}

	switch choice.FinishReason {
	case openai.FinishReasonToolCalls:
		out.StopReason = agent.StopToolUse
	case openai.FinishReasonLength:
		out.StopReason = agent.StopMaxTokens
	default:
		out.StopReason = agent.StopEndTurn
	}
	return out, nil
}

// convertChatMessages flattens driver history into the OpenAI chat
// shape: the system prompt leads, tool results become role "tool"
// messages linked by call ID.
func convertChatMessages(system string, messages []agent.Message) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		if len(msg.ToolResults) > 0 {
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
			continue
		}

		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if len(msg.ToolCalls) > 0 {
			oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				}
			}
		}
		result = append(result, oaiMsg)
	}
	return result
}

func convertChatTools(specs []agent.ToolSpec) ([]openai.Tool, error) {
	result := make([]openai.Tool, len(specs))
	for i, spec := range specs {
		var schema map[string]any
		if err := json.Unmarshal(spec.Schema, &schema); err != nil {
			return nil, fmt.Errorf("openai-compat: invalid tool schema for %s: %w", spec.Name, err)
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			},
		}
	}
	return result, nil
}
