// Package smallmodel abstracts a cheap text-to-text model used for
// classification, summarisation, and prompt trimming. Variants cover an
// on-device binary, a local OpenAI-compatible runner, and the cloud
// fast tier.
package smallmodel

import (
	"context"
)

// Request is one small-model generation.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Usage reports the token cost of a generation.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Result is a successful generation. A nil Result with a nil error
// means the model declined to answer.
type Result struct {
	Text  string
	Usage Usage
}

// Client is the small-model contract. Generate returns (nil, nil) when
// the model produces no usable text.
type Client interface {
	// Available reports whether the client can serve requests.
	Available() bool

	// Provider returns the ledger provider label for this client.
	Provider() string

	// Model returns the model identifier for pricing.
	Model() string

	// Generate runs one completion.
	Generate(ctx context.Context, req Request) (*Result, error)
}

// DefaultMaxTokens bounds generations that do not declare a limit.
const DefaultMaxTokens = 1024

// Prefer returns the first available client, or nil when none is.
func Prefer(clients ...Client) Client {
	for _, c := range clients {
		if c != nil && c.Available() {
			return c
		}
	}
	return nil
}
