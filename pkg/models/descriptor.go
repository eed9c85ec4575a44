package models

import "encoding/json"

// ToolDescriptor describes one tool exposed by a provider. Descriptors come
// in two detail tiers: the summary tier carries only identification and a
// short description, the full tier adds the input schema and output field
// list. Inventory listings only ever surface the summary tier; full
// descriptors are returned for explicitly matched search results.
//
// Descriptors are immutable once returned.
type ToolDescriptor struct {
	// Provider is the provider name, e.g. "slack".
	Provider string `json:"provider"`

	// Tool is the tool name within the provider, e.g. "post_message".
	Tool string `json:"tool"`

	// QualifiedName is "provider.tool".
	QualifiedName string `json:"qualified_name"`

	// Description is a short natural-language description.
	Description string `json:"description"`

	// InputSchema is the JSON Schema for the tool's payload. Populated only
	// in the full detail tier.
	InputSchema json.RawMessage `json:"input_schema,omitempty"`

	// OutputFields lists the top-level fields of a successful result.
	// Populated only in the full detail tier.
	OutputFields []string `json:"output_fields,omitempty"`
}

// Summary returns the summary-tier copy of the descriptor, with schema and
// output diagnostics stripped.
func (d ToolDescriptor) Summary() ToolDescriptor {
	d.InputSchema = nil
	d.OutputFields = nil
	return d
}

// ProviderSummary is the inventory view of one provider: its name and the
// names of its tools, with no schemas.
type ProviderSummary struct {
	Provider string   `json:"provider"`
	Tools    []string `json:"tools"`
}
