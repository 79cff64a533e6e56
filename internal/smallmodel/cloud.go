package smallmodel

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/voltbot/volt/internal/ledger"
)

// DefaultFastModel is the cloud fast-tier model.
const DefaultFastModel = "claude-3-5-haiku-latest"

// CloudFastClient drives the cloud fast model. Always available when
// credentials are set.
type CloudFastClient struct {
	client    anthropic.Client
	apiKey    string
	model     string
	available bool
}

// CloudFastOption configures a CloudFastClient.
type CloudFastOption func(*CloudFastClient)

// WithModel overrides the fast-tier model.
func WithModel(model string) CloudFastOption {
	return func(c *CloudFastClient) { c.model = model }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) CloudFastOption {
	return func(c *CloudFastClient) {
		c.client = anthropic.NewClient(option.WithAPIKey(c.apiKey), option.WithBaseURL(url))
	}
}

// NewCloudFastClient creates a fast-tier client. An empty API key
// yields a never-available client.
func NewCloudFastClient(apiKey string, opts ...CloudFastOption) *CloudFastClient {
	c := &CloudFastClient{
		apiKey:    apiKey,
		model:     DefaultFastModel,
		available: apiKey != "",
	}
	if c.available {
		c.client = anthropic.NewClient(option.WithAPIKey(apiKey))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CloudFastClient) Available() bool  { return c.available }
func (c *CloudFastClient) Provider() string { return ledger.ProviderCloudFast }
func (c *CloudFastClient) Model() string    { return c.model }

// Generate runs one non-streaming completion.
func (c *CloudFastClient) Generate(ctx context.Context, req Request) (*Result, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	out := strings.TrimSpace(text.String())
	if out == "" {
		return nil, nil
	}
	return &Result{
		Text: out,
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}
