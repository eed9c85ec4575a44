// Package decision defines the planning loop's contract with its decision
// source: the snapshot it sends out and the command grammar it accepts
// back. A command must be a single JSON object carrying exactly one of the
// four verbs; anything else is a malformed command, which the loop treats
// as a bounded, retryable failure.
package decision

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedCommand is the sentinel wrapped by every command parse or
// shape failure.
var ErrMalformedCommand = errors.New("malformed command")

// MaxSearchLimit caps how many results one search command may request.
const MaxSearchLimit = 50

// ToolCommand requests one provider-tool invocation.
type ToolCommand struct {
	Provider string         `json:"provider"`
	Name     string         `json:"name"`
	Payload  map[string]any `json:"payload"`
}

// SearchCommand requests a tool search.
type SearchCommand struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SandboxCommand requests a sandboxed code execution.
type SandboxCommand struct {
	Code    string `json:"code"`
	Timeout int    `json:"timeout"`
	Label   string `json:"label,omitempty"`
}

// FinishCommand terminates the run with a summary.
type FinishCommand struct {
	Summary string `json:"summary"`
}

// Command is the tagged union of the four verbs. Exactly one field is
// non-nil after a successful Parse.
type Command struct {
	Tool    *ToolCommand    `json:"tool,omitempty"`
	Search  *SearchCommand  `json:"search,omitempty"`
	Sandbox *SandboxCommand `json:"sandbox,omitempty"`
	Finish  *FinishCommand  `json:"finish,omitempty"`
}

// Kind names the command's verb for step records and logs.
func (c *Command) Kind() string {
	switch {
	case c.Tool != nil:
		return "tool"
	case c.Search != nil:
		return "search"
	case c.Sandbox != nil:
		return "sandbox"
	case c.Finish != nil:
		return "finish"
	default:
		return "empty"
	}
}

// Parse decodes raw text into a validated command. The text may wrap the
// JSON object in a markdown fence, which some decision sources insist on
// emitting; everything else about the grammar is strict: unknown fields,
// wrong field types, zero verbs, and multiple verbs are all rejected with
// an error wrapping ErrMalformedCommand.
func Parse(raw string) (*Command, error) {
	text := stripFence(strings.TrimSpace(raw))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedCommand)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	var cmd Command
	if err := dec.Decode(&cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing content after command object", ErrMalformedCommand)
	}
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	return &cmd, nil
}

func (c *Command) validate() error {
	verbs := 0
	if c.Tool != nil {
		verbs++
	}
	if c.Search != nil {
		verbs++
	}
	if c.Sandbox != nil {
		verbs++
	}
	if c.Finish != nil {
		verbs++
	}
	switch {
	case verbs == 0:
		return fmt.Errorf("%w: no verb (want one of tool, search, sandbox, finish)", ErrMalformedCommand)
	case verbs > 1:
		return fmt.Errorf("%w: %d verbs in one command", ErrMalformedCommand, verbs)
	}

	switch {
	case c.Tool != nil:
		if c.Tool.Provider == "" {
			return fmt.Errorf("%w: tool command missing provider", ErrMalformedCommand)
		}
		if c.Tool.Name == "" {
			return fmt.Errorf("%w: tool command missing name", ErrMalformedCommand)
		}
	case c.Search != nil:
		if strings.TrimSpace(c.Search.Query) == "" {
			return fmt.Errorf("%w: search command missing query", ErrMalformedCommand)
		}
		if c.Search.Limit < 0 || c.Search.Limit > MaxSearchLimit {
			return fmt.Errorf("%w: search limit %d out of range [0, %d]",
				ErrMalformedCommand, c.Search.Limit, MaxSearchLimit)
		}
	case c.Sandbox != nil:
		if strings.TrimSpace(c.Sandbox.Code) == "" {
			return fmt.Errorf("%w: sandbox command missing code", ErrMalformedCommand)
		}
		if c.Sandbox.Timeout < 0 {
			return fmt.Errorf("%w: sandbox timeout %d is negative", ErrMalformedCommand, c.Sandbox.Timeout)
		}
	}
	return nil
}

// stripFence removes a ```json ... ``` (or bare ```) wrapper.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		// Drop the language tag line.
		text = text[i+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
