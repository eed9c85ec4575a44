package models

import "sort"

// ActionResult is the uniform envelope returned by every provider-tool
// invocation. It is the only shape the planner ever sees from a tool call,
// regardless of which provider produced it or how it failed.
//
// Invariants:
//   - Successful=false always accompanies a non-empty Error, and vice versa.
//   - Data is present only on success (nil is allowed for no-op successes).
//   - PayloadKeys is the sorted set of top-level keys in Data.
//
// Construct envelopes through ActionSuccess and ActionFailure so these
// invariants hold by construction.
type ActionResult struct {
	// Successful reports whether the invocation completed without error.
	Successful bool `json:"successful"`

	// Error is the human-readable failure message. Empty on success.
	Error string `json:"error,omitempty"`

	// Data is the structured payload returned by the provider on success.
	Data map[string]any `json:"data,omitempty"`

	// Logs are provider or wrapper diagnostics collected during the call,
	// in emission order.
	Logs []string `json:"logs,omitempty"`

	// Provider is the provider that handled the call.
	Provider string `json:"provider"`

	// Tool is the tool name within the provider.
	Tool string `json:"tool"`

	// PayloadKeys lists the top-level keys of Data, sorted ascending.
	PayloadKeys []string `json:"payload_keys,omitempty"`
}

// ActionSuccess builds a successful envelope for the given provider/tool with
// the provider's payload. PayloadKeys is derived from data.
func ActionSuccess(provider, tool string, data map[string]any, logs ...string) ActionResult {
	return ActionResult{
		Successful:  true,
		Data:        data,
		Logs:        logs,
		Provider:    provider,
		Tool:        tool,
		PayloadKeys: payloadKeys(data),
	}
}

// ActionFailure builds a failed envelope for the given provider/tool. An
// empty message is replaced with a generic one so the envelope invariant
// (failure implies non-empty error) cannot be violated by a sloppy caller.
func ActionFailure(provider, tool, message string, logs ...string) ActionResult {
	if message == "" {
		message = "tool invocation failed"
	}
	return ActionResult{
		Successful: false,
		Error:      message,
		Logs:       logs,
		Provider:   provider,
		Tool:       tool,
	}
}

func payloadKeys(data map[string]any) []string {
	if len(data) == 0 {
		return nil
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
