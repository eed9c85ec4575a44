package decision

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/conduit/pkg/models"
)

// Snapshot is the compact planning-state view sent to the decision source
// on each iteration. It carries summaries and a bounded step window, never
// the full raw history.
type Snapshot struct {
	// Task is the caller's task statement.
	Task string `json:"task"`

	// Inventory is the tenant's provider/tool inventory, summary tier.
	Inventory []models.ProviderSummary `json:"inventory"`

	// SearchResults holds the full descriptors from the most recent
	// search, if any.
	SearchResults []models.ToolDescriptor `json:"search_results,omitempty"`

	// RecentSteps is the bounded window of the most recent steps.
	RecentSteps []models.Step `json:"recent_steps,omitempty"`

	// BudgetRemaining is how much budget the run has left.
	BudgetRemaining int `json:"budget_remaining"`

	// SearchCount is how many searches the run has issued so far.
	SearchCount int `json:"search_count"`
}

// Source produces the next command for a run. Implementations return the
// raw textual reply; parsing and validation stay with the caller so a
// misbehaving source translates into a bounded validation failure, not an
// error from the source itself.
type Source interface {
	// Decide returns the source's raw reply to the snapshot.
	Decide(ctx context.Context, snapshot Snapshot) (string, error)
}

const systemPrompt = `You drive a tool-using task runner. Each turn you receive the current
planning state as JSON and must reply with exactly one JSON object using
exactly one of these verbs:

  {"tool": {"provider": "<provider>", "name": "<tool>", "payload": {...}}}
  {"search": {"query": "<free text>", "limit": <n>}}
  {"sandbox": {"code": "<source code>", "timeout": <seconds>, "label": "<optional>"}}
  {"finish": {"summary": "<what was accomplished>"}}

Reply with the JSON object only. No prose, no markdown, no explanations.
Use search to find tools before invoking them; payloads must satisfy the
tool's input schema. Finish as soon as the task is done.`

// renderSnapshot serializes the snapshot into the user message body.
func renderSnapshot(snapshot Snapshot) (string, error) {
	body, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return "Planning state:\n" + string(body) + "\n\nNext command:", nil
}
