package budget

import (
	"errors"
	"testing"

	"github.com/haasonsaas/conduit/pkg/models"
)

func TestConsumeUpToLimit(t *testing.T) {
	tr := NewTracker(3, models.UnitSteps)
	for i := 0; i < 3; i++ {
		if err := tr.CheckAndConsume(1); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if err := tr.CheckAndConsume(1); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	// The failing call must not consume.
	if got := tr.State().Consumed; got != 3 {
		t.Fatalf("consumed = %v, want 3", got)
	}
}

func TestOverLimitCostConsumesNothing(t *testing.T) {
	tr := NewTracker(10, models.UnitTokens)
	if err := tr.CheckAndConsume(4); err != nil {
		t.Fatal(err)
	}
	if err := tr.CheckAndConsume(7); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if got := tr.State().Consumed; got != 4 {
		t.Fatalf("consumed = %v, want 4", got)
	}
	// A smaller cost that still fits goes through.
	if err := tr.CheckAndConsume(6); err != nil {
		t.Fatal(err)
	}
	if tr.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", tr.Remaining())
	}
}

func TestDefaults(t *testing.T) {
	tr := NewTracker(0, "")
	st := tr.State()
	if st.Limit != DefaultLimit {
		t.Fatalf("limit = %v, want %d", st.Limit, DefaultLimit)
	}
	if st.Unit != models.UnitSteps {
		t.Fatalf("unit = %q, want %q", st.Unit, models.UnitSteps)
	}
}

func TestNegativeCostRejected(t *testing.T) {
	tr := NewTracker(5, models.UnitSteps)
	if err := tr.CheckAndConsume(-1); err == nil {
		t.Fatal("negative cost accepted")
	}
	if got := tr.State().Consumed; got != 0 {
		t.Fatalf("consumed = %v, want 0", got)
	}
}
