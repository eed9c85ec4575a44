package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrToolNotFound indicates the resolved provider does not expose the
// requested tool.
var ErrToolNotFound = errors.New("tool not found")

// ValidationError reports a payload that failed schema validation. The
// invocation never reached the provider.
type ValidationError struct {
	Provider string
	Tool     string
	Causes   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload for %s.%s: %s", e.Provider, e.Tool, strings.Join(e.Causes, "; "))
}

// ToolExecutionError wraps a failure raised by the provider while
// executing a tool that was found, authorized, and given a valid payload.
type ToolExecutionError struct {
	Provider string
	Tool     string
	Err      error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("%s.%s failed: %v", e.Provider, e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
