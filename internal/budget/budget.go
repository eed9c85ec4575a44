// Package budget enforces the per-execution spend ceiling. A Tracker is
// owned by exactly one planner loop, so it needs no locking; consumption is
// checked and recorded in a single call to keep the "never exceed the
// limit" property trivially true.
package budget

import (
	"errors"
	"fmt"

	"github.com/haasonsaas/conduit/pkg/models"
)

// ErrBudgetExceeded indicates the next action would push consumption past
// the configured limit. The action is not performed and nothing is
// consumed.
var ErrBudgetExceeded = errors.New("budget exceeded")

// DefaultLimit applies when a run is started without an explicit budget.
const DefaultLimit = 20

// Tracker counts consumption against a fixed limit in a single unit.
type Tracker struct {
	consumed int
	limit    int
	unit     models.BudgetUnit
}

// NewTracker creates a tracker. A non-positive limit falls back to
// DefaultLimit; an empty unit falls back to steps.
func NewTracker(limit int, unit models.BudgetUnit) *Tracker {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if unit == "" {
		unit = models.UnitSteps
	}
	return &Tracker{limit: limit, unit: unit}
}

// CheckAndConsume records cost against the budget. If the cost would
// exceed the limit it returns ErrBudgetExceeded and consumes nothing, so
// consumption can never pass the limit even on the failing call.
func (t *Tracker) CheckAndConsume(cost int) error {
	if cost < 0 {
		return fmt.Errorf("negative cost %d", cost)
	}
	if t.consumed+cost > t.limit {
		return fmt.Errorf("%w: consumed %d/%d %s, next action costs %d",
			ErrBudgetExceeded, t.consumed, t.limit, t.unit, cost)
	}
	t.consumed += cost
	return nil
}

// Remaining reports how much budget is left.
func (t *Tracker) Remaining() int {
	return t.limit - t.consumed
}

// State snapshots the tracker for inclusion in an execution result.
func (t *Tracker) State() models.BudgetState {
	return models.BudgetState{
		Consumed: float64(t.consumed),
		Limit:    float64(t.limit),
		Unit:     t.unit,
	}
}
