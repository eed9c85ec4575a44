// Package providers defines the client abstraction for external tool
// providers (messaging and similar integrations) and the concrete
// integrations shipped with the runtime.
//
// A provider exposes one or more named tools, each with a JSON Schema for its
// payload. Clients are constructed per tenant with that tenant's credentials
// and registered in the tenant registry; the dispatcher resolves them by
// provider name and invokes tools through the uniform Invoke entry point.
//
// Clients never return a success payload and an error together, and they
// never panic past Invoke: provider-side failures surface as plain errors
// which the dispatcher folds into the result envelope.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolSpec describes one tool a provider exposes.
type ToolSpec struct {
	// Name is the tool name within the provider, e.g. "post_message".
	Name string

	// Description is a short natural-language description of the tool.
	Description string

	// InputSchema is the JSON Schema the payload must validate against.
	InputSchema json.RawMessage

	// OutputFields lists the top-level keys of a successful result payload.
	OutputFields []string
}

// Client is a tenant-scoped handle to one provider. Implementations must be
// safe for concurrent use: a single client is shared by every execution of
// its tenant.
type Client interface {
	// Name returns the provider name, e.g. "slack".
	Name() string

	// Tools returns the static tool set this client exposes. The returned
	// slice must not change over the client's lifetime.
	Tools() []ToolSpec

	// Invoke executes the named tool with the given payload and returns the
	// structured result. Unknown tools and provider-side failures are
	// reported as errors; Invoke never returns both a payload and an error.
	Invoke(ctx context.Context, tool string, payload map[string]any) (map[string]any, error)
}

// stringField extracts a required string field from a payload.
func stringField(payload map[string]any, key string) (string, error) {
	raw, ok := payload[key]
	if !ok {
		return "", fmt.Errorf("missing required field %q", key)
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", fmt.Errorf("field %q must be a non-empty string", key)
	}
	return value, nil
}

// intField extracts an optional integer field, tolerating the float64 shape
// JSON decoding produces. Returns fallback when absent.
func intField(payload map[string]any, key string, fallback int) (int, error) {
	raw, ok := payload[key]
	if !ok {
		return fallback, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("field %q must be a number", key)
	}
}
