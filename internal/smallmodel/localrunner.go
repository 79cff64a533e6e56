package smallmodel

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voltbot/volt/internal/ledger"
)

// LocalRunnerClient talks to a local OpenAI-compatible inference server
// (ollama, llama.cpp server, vllm).
type LocalRunnerClient struct {
	client *openai.Client
	model  string
}

// NewLocalRunnerClient creates a client for the runner at baseURL. An
// empty URL yields a never-available client.
func NewLocalRunnerClient(baseURL, model string) *LocalRunnerClient {
	if baseURL == "" {
		return &LocalRunnerClient{}
	}
	cfg := openai.DefaultConfig("")
	cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	if model == "" {
		model = "llama3.2"
	}
	return &LocalRunnerClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (c *LocalRunnerClient) Available() bool  { return c.client != nil }
func (c *LocalRunnerClient) Provider() string { return ledger.ProviderLocalRunner }
func (c *LocalRunnerClient) Model() string    { return c.model }

// Generate runs one chat completion against the runner.
func (c *LocalRunnerClient) Generate(ctx context.Context, req Request) (*Result, error) {
	if c.client == nil {
		return nil, nil
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, nil
	}
	return &Result{
		Text: text,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
