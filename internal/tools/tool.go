// Package tools implements the callable tool registry: builtin tools
// compiled into the binary, custom tools persisted as JSON definitions,
// and promoted tools (persisted tools upgraded to compiled form). The
// registry is the single lookup point the agent driver dispatches
// through.
package tools

import (
	"context"
	"encoding/json"
)

// Tool is an executable capability offered to the model.
type Tool interface {
	// Name returns the registered tool name. Must match ^[a-z][a-z0-9_]*$.
	Name() string

	// Description explains what the tool does, for the model's benefit.
	Description() string

	// Schema returns the JSON Schema for the tool's input map.
	Schema() json.RawMessage

	// Execute runs the tool. Errors the model can recover from are
	// returned as a Result with IsError set; a non-nil error means the
	// invocation itself failed.
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Result is the outcome of one tool execution.
type Result struct {
	// Content is the textual payload returned to the model.
	Content string `json:"content"`

	// IsError marks the result as an error condition.
	IsError bool `json:"is_error,omitempty"`
}

// Kind distinguishes how a tool entered the registry.
type Kind string

const (
	// KindBuiltin tools are compiled into the binary and cannot be
	// removed.
	KindBuiltin Kind = "builtin"

	// KindPersisted tools are restored from on-disk JSON definitions.
	KindPersisted Kind = "persisted"

	// KindPromoted tools are persisted tools upgraded to compiled form.
	KindPromoted Kind = "promoted"
)

// Categorized is implemented by tools that declare a category for
// ListByCategory. Tools without it fall into the "general" category.
type Categorized interface {
	Category() string
}

// DefaultCategory is used for tools that do not declare one.
const DefaultCategory = "general"

func categoryOf(t Tool) string {
	if c, ok := t.(Categorized); ok && c.Category() != "" {
		return c.Category()
	}
	return DefaultCategory
}
