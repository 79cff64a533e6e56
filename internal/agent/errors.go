package agent

import (
	"errors"
	"fmt"
)

// ErrStalled indicates the stale-loop guard tripped and the run was
// aborted with partial results.
var ErrStalled = errors.New("stale loop detected")

// AuthError indicates the provider rejected our credentials. Not
// retryable on another iteration; surfaces to the caller directly.
type AuthError struct {
	Provider string
	Cause    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Provider, e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
