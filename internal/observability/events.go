package observability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes timeline events for filtering and display.
type EventType string

const (
	EventTypeRunStart      EventType = "run.start"
	EventTypeRunEnd        EventType = "run.end"
	EventTypeDispatchStart EventType = "dispatch.start"
	EventTypeDispatchEnd   EventType = "dispatch.complete"
	EventTypeDispatchError EventType = "dispatch.fail"
	EventTypeSandboxStart  EventType = "sandbox.start"
	EventTypeSandboxEnd    EventType = "sandbox.end"
	EventTypeSearch        EventType = "search"
	EventTypeBudget        EventType = "budget.exceeded"
	EventTypeValidation    EventType = "command.invalid"
)

// Event represents a single entry in the diagnostic timeline. Events are
// tagged with tenant, provider, and tool so interleaved activity from many
// concurrent executions can be told apart.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Duration  time.Duration  `json:"duration_ns,omitempty"`
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Timeline stores recent events in memory with a bounded size for debugging
// concurrent executions. Record is safe for concurrent use.
//
// Emission is fire-and-forget: Emit never returns an error and never blocks
// beyond the short critical section needed to append.
type Timeline struct {
	mu      sync.RWMutex
	events  []Event
	maxSize int
	logger  *Logger
}

// NewTimeline creates a bounded in-memory event timeline. maxSize <= 0
// defaults to 10000 events; older events are evicted first.
func NewTimeline(maxSize int, logger *Logger) *Timeline {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Timeline{maxSize: maxSize, logger: logger}
}

// Emit records an event, stamping a fresh id and timestamp when absent.
// It never fails; eviction keeps the timeline bounded.
func (t *Timeline) Emit(ctx context.Context, event Event) {
	if t == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.TenantID == "" {
		event.TenantID = GetTenantID(ctx)
	}
	if event.RunID == "" {
		event.RunID = GetRunID(ctx)
	}

	t.mu.Lock()
	if len(t.events) >= t.maxSize {
		// Drop the oldest half rather than one at a time to amortize.
		copy(t.events, t.events[t.maxSize/2:])
		t.events = t.events[:len(t.events)-t.maxSize/2]
	}
	t.events = append(t.events, event)
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Debug(ctx, "event",
			"event_type", string(event.Type),
			"provider", event.Provider,
			"tool", event.Tool,
			"event_error", event.Error,
		)
	}
}

// ByRun returns all events recorded for a run, sorted by timestamp.
func (t *Timeline) ByRun(runID string) []Event {
	return t.filter(func(e Event) bool { return e.RunID == runID })
}

// ByTenant returns all events recorded for a tenant, sorted by timestamp.
func (t *Timeline) ByTenant(tenantID string) []Event {
	return t.filter(func(e Event) bool { return e.TenantID == tenantID })
}

// Len returns the number of retained events.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.events)
}

func (t *Timeline) filter(keep func(Event) bool) []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Event
	for _, e := range t.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
