package models

// BudgetUnit names the cost unit a budget tracker counts in. The unit is
// fixed at configuration time; steps and token-style costs are both expressed
// through the same numeric interface.
type BudgetUnit string

const (
	// UnitSteps counts each planner step as one unit (the default).
	UnitSteps BudgetUnit = "steps"

	// UnitTokens counts approximate token cost per step.
	UnitTokens BudgetUnit = "tokens"
)

// BudgetState is a snapshot of budget consumption for one execution.
type BudgetState struct {
	// Consumed is the total cost charged so far.
	Consumed float64 `json:"consumed"`

	// Limit is the hard ceiling. Consumed never exceeds Limit.
	Limit float64 `json:"limit"`

	// Unit is the cost unit both numbers are expressed in.
	Unit BudgetUnit `json:"unit"`
}

// ExecutionResult is the terminal structure returned to the caller when a
// planner run ends, whether by finishing, exhausting its budget, or failing.
// It is created once at loop termination and never mutated afterwards.
type ExecutionResult struct {
	// Success reports whether the run reached a finish command.
	Success bool `json:"success"`

	// FinalSummary is the summary supplied by the finish command.
	FinalSummary string `json:"final_summary,omitempty"`

	// RawOutputs maps step result keys to the full captured payloads that
	// were truncated to previews in the step history.
	RawOutputs map[string]any `json:"raw_outputs,omitempty"`

	// BudgetUsage is the final budget snapshot.
	BudgetUsage BudgetState `json:"budget_usage"`

	// Steps is the complete ordered step history for the run.
	Steps []Step `json:"steps"`

	// Logs are runtime diagnostics collected during the run.
	Logs []string `json:"logs,omitempty"`

	// Error describes why the run terminated unsuccessfully. Empty when
	// Success is true.
	Error string `json:"error,omitempty"`
}
