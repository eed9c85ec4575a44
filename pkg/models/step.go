package models

import "unicode/utf8"

// StepKind identifies what a planner step did.
type StepKind string

const (
	// StepTool is a provider-tool invocation through the dispatcher.
	StepTool StepKind = "tool"

	// StepSandbox is a sandboxed code execution.
	StepSandbox StepKind = "sandbox"

	// StepSearch is a tool discovery search.
	StepSearch StepKind = "search"

	// StepFinish is the terminal step carrying the final summary.
	StepFinish StepKind = "finish"

	// StepFailure records a command that failed validation or a step that
	// could not execute. Failure steps are recoverable; the loop continues.
	StepFailure StepKind = "failure"
)

// Step is one entry in an execution's append-only history. The full sequence
// is retained for the terminal result; only a bounded recent window is
// surfaced to planning decisions.
type Step struct {
	// Index is the zero-based position in the history.
	Index int `json:"index"`

	// Kind is the step category.
	Kind StepKind `json:"kind"`

	// Preview is a truncated human-readable summary of what happened.
	Preview string `json:"preview"`

	// Successful reports whether the step's operation succeeded.
	Successful bool `json:"successful"`

	// ResultKey references the full raw output retained in the execution's
	// raw output map. Empty when the step produced no stored output.
	ResultKey string `json:"result_key,omitempty"`

	// Error is the failure message for unsuccessful steps.
	Error string `json:"error,omitempty"`
}

// StepHistory is the ordered, append-only log of steps for one execution.
// It is exclusively owned by a single planner run and needs no locking.
type StepHistory struct {
	steps []Step
}

// Append adds a step, assigning its index, and returns the stored value.
func (h *StepHistory) Append(step Step) Step {
	step.Index = len(h.steps)
	h.steps = append(h.steps, step)
	return step
}

// Len returns the number of recorded steps.
func (h *StepHistory) Len() int {
	return len(h.steps)
}

// All returns a copy of the full step sequence.
func (h *StepHistory) All() []Step {
	out := make([]Step, len(h.steps))
	copy(out, h.steps)
	return out
}

// Window returns a copy of the most recent n steps, oldest first.
func (h *StepHistory) Window(n int) []Step {
	if n <= 0 || len(h.steps) == 0 {
		return nil
	}
	start := len(h.steps) - n
	if start < 0 {
		start = 0
	}
	out := make([]Step, len(h.steps)-start)
	copy(out, h.steps[start:])
	return out
}

// TruncatePreview shortens s to at most max runes, appending an ellipsis
// marker when content was dropped. The cut is rune-safe so multi-byte
// characters are never split.
func TruncatePreview(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "...[truncated]"
}
