package tools

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry operations.
var (
	// ErrDuplicateName indicates a custom tool collides with an
	// existing tool of any kind.
	ErrDuplicateName = errors.New("tool name already registered")

	// ErrInvalidName indicates a name outside ^[a-z][a-z0-9_]*$.
	ErrInvalidName = errors.New("invalid tool name")

	// ErrNotFound indicates a lookup for an unregistered tool.
	ErrNotFound = errors.New("tool not found")

	// ErrBuiltinRemoval indicates an attempt to remove a builtin tool.
	ErrBuiltinRemoval = errors.New("builtin tools cannot be removed")
)

// ErrorType categorises tool execution failures.
type ErrorType string

const (
	// ErrorBadInput indicates the input map violated the tool schema.
	ErrorBadInput ErrorType = "bad_input"

	// ErrorTimeout indicates the per-tool timeout was exceeded.
	ErrorTimeout ErrorType = "timeout"

	// ErrorRuntime indicates a failure during execution.
	ErrorRuntime ErrorType = "runtime"
)

// ToolError is a categorised tool execution failure. The agent driver
// hands it back to the model as an error result rather than aborting
// the run.
type ToolError struct {
	Type    ErrorType
	Tool    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Tool, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Tool, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Tool)
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// NewToolError creates a categorised execution error.
func NewToolError(typ ErrorType, tool, message string, cause error) *ToolError {
	return &ToolError{Type: typ, Tool: tool, Message: message, Cause: cause}
}

// AsToolError extracts a ToolError from an error chain.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
