// Package planner drives the Reason-Act loop: ask the decision source for
// the next command, execute it through discovery, the dispatcher, or the
// sandbox, record a step, and repeat until a finish command, budget
// exhaustion, or an unrecoverable run of malformed commands.
//
// A run's loop is strictly sequential; nothing about one step overlaps the
// next. Concurrency lives between runs, which share only the tenant
// registry. Budget state, step history, and raw outputs are created fresh
// per run and owned exclusively by it.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/conduit/internal/budget"
	"github.com/haasonsaas/conduit/internal/discovery"
	"github.com/haasonsaas/conduit/internal/dispatch"
	"github.com/haasonsaas/conduit/internal/observability"
	"github.com/haasonsaas/conduit/internal/planner/decision"
	"github.com/haasonsaas/conduit/internal/sandbox"
	"github.com/haasonsaas/conduit/pkg/models"
)

// Phase is the loop's state-machine position. Exported for logs and tests;
// the loop itself drives the transitions.
type Phase string

const (
	PhaseDiscovering    Phase = "discovering"
	PhaseDeciding       Phase = "deciding"
	PhaseActingTool     Phase = "acting_tool"
	PhaseActingSandbox  Phase = "acting_sandbox"
	PhaseSearching      Phase = "searching"
	PhaseFinishing      Phase = "finishing"
	PhaseBudgetExceeded Phase = "budget_exceeded"
	PhaseFailed         Phase = "failed"
)

const (
	// DefaultStepWindow is how many recent steps the snapshot carries.
	DefaultStepWindow = 10

	// DefaultMaxValidationFailures is how many consecutive malformed
	// commands the loop tolerates before failing the run.
	DefaultMaxValidationFailures = 3

	// previewMax bounds step preview length in runes.
	previewMax = 160
)

// Config tunes the loop.
type Config struct {
	// BudgetLimit is the default per-run budget when the caller passes
	// none. Zero falls back to the tracker default.
	BudgetLimit int `yaml:"budget_limit"`

	// BudgetUnit selects what the budget counts. Defaults to steps.
	BudgetUnit models.BudgetUnit `yaml:"budget_unit"`

	// StepWindow is the recent-step window size. Zero means
	// DefaultStepWindow.
	StepWindow int `yaml:"step_window"`

	// MaxValidationFailures bounds consecutive malformed commands. Zero
	// means DefaultMaxValidationFailures.
	MaxValidationFailures int `yaml:"max_validation_failures"`

	// ToolCosts overrides the per-step budget cost for specific tools,
	// keyed by qualified name (provider.tool).
	ToolCosts map[string]int `yaml:"tool_costs"`
}

// Planner owns the loop's collaborators. Safe for concurrent use; all
// per-run state lives in the run, never on the Planner.
type Planner struct {
	config     Config
	source     decision.Source
	discovery  *discovery.Service
	dispatcher *dispatch.Dispatcher
	sandbox    *sandbox.Executor
	logger     *observability.Logger
	metrics    *observability.Metrics
	timeline   *observability.Timeline
	tracer     *observability.Tracer
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger attaches a logger.
func WithLogger(logger *observability.Logger) Option {
	return func(p *Planner) { p.logger = logger }
}

// WithMetrics attaches prometheus metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Planner) { p.metrics = metrics }
}

// WithTimeline attaches the diagnostic event timeline.
func WithTimeline(timeline *observability.Timeline) Option {
	return func(p *Planner) { p.timeline = timeline }
}

// WithTracer attaches an OpenTelemetry tracer.
func WithTracer(tracer *observability.Tracer) Option {
	return func(p *Planner) { p.tracer = tracer }
}

// New creates a planner.
func New(config Config, source decision.Source, disc *discovery.Service, dispatcher *dispatch.Dispatcher, sb *sandbox.Executor, opts ...Option) *Planner {
	if config.StepWindow <= 0 {
		config.StepWindow = DefaultStepWindow
	}
	if config.MaxValidationFailures <= 0 {
		config.MaxValidationFailures = DefaultMaxValidationFailures
	}
	if config.BudgetUnit == "" {
		config.BudgetUnit = models.UnitSteps
	}
	p := &Planner{
		config:     config,
		source:     source,
		discovery:  disc,
		dispatcher: dispatcher,
		sandbox:    sb,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run is the per-execution state. Created fresh for every Execute call and
// never shared.
type run struct {
	tenant    models.TenantID
	task      string
	id        string
	phase     Phase
	tracker   *budget.Tracker
	history   models.StepHistory
	raw       map[string]any
	logs      []string
	inventory []models.ProviderSummary

	searchResults []models.ToolDescriptor
	searchCount   int

	consecutiveFailures int
}

func (r *run) logf(format string, args ...any) {
	r.logs = append(r.logs, fmt.Sprintf(format, args...))
}

// Execute runs a task for a tenant and returns the terminal result. The
// budget limit is per call; zero selects the configured default. Execute
// never panics and never returns before producing a definite result, even
// when the decision source misbehaves.
func (p *Planner) Execute(ctx context.Context, tenant models.TenantID, task string, budgetLimit int) models.ExecutionResult {
	tenant = models.NormalizeTenantID(string(tenant))
	if budgetLimit <= 0 {
		budgetLimit = p.config.BudgetLimit
	}

	r := &run{
		tenant:  tenant,
		task:    task,
		id:      uuid.NewString(),
		phase:   PhaseDiscovering,
		tracker: budget.NewTracker(budgetLimit, p.config.BudgetUnit),
		raw:     make(map[string]any),
	}
	ctx = observability.AddTenantID(ctx, tenant.String())
	ctx = observability.AddRunID(ctx, r.id)

	if p.tracer != nil {
		spanCtx, span := p.tracer.Start(ctx, "planner.execute",
			attribute.String("tenant", tenant.String()),
			attribute.String("run_id", r.id),
		)
		defer span.End()
		ctx = spanCtx
	}
	if p.metrics != nil {
		p.metrics.ActiveRuns.WithLabelValues(tenant.String()).Inc()
		defer p.metrics.ActiveRuns.WithLabelValues(tenant.String()).Dec()
	}
	p.emit(ctx, observability.Event{
		Type:     observability.EventTypeRunStart,
		TenantID: tenant.String(),
		RunID:    r.id,
		Data:     map[string]any{"task": models.TruncatePreview(task, previewMax)},
	})
	if p.logger != nil {
		p.logger.Info(ctx, "run starting", "task", models.TruncatePreview(task, previewMax), "budget", budgetLimit)
	}

	start := time.Now()
	result := p.loop(ctx, r)

	outcome := "finished"
	switch r.phase {
	case PhaseBudgetExceeded:
		outcome = "budget_exceeded"
	case PhaseFailed:
		outcome = "failed"
	}
	if p.metrics != nil {
		p.metrics.RunCounter.WithLabelValues(tenant.String(), outcome).Inc()
		p.metrics.RunSteps.WithLabelValues(tenant.String()).Observe(float64(r.history.Len()))
		p.metrics.BudgetConsumed.WithLabelValues(tenant.String(), string(p.config.BudgetUnit)).
			Observe(result.BudgetUsage.Consumed)
	}
	p.emit(ctx, observability.Event{
		Type:     observability.EventTypeRunEnd,
		TenantID: tenant.String(),
		RunID:    r.id,
		Duration: time.Since(start),
		Error:    result.Error,
		Data:     map[string]any{"outcome": outcome, "steps": r.history.Len()},
	})
	if p.logger != nil {
		p.logger.Info(ctx, "run finished",
			"outcome", outcome, "steps", r.history.Len(), "duration_ms", time.Since(start).Milliseconds())
	}
	return result
}

// loop is the state machine. It returns only from a terminal phase.
func (p *Planner) loop(ctx context.Context, r *run) models.ExecutionResult {
	// Discovering: load the inventory view once.
	r.inventory = p.discovery.ListProviders(r.tenant)
	r.logf("inventory loaded: %d providers", len(r.inventory))

	for {
		r.phase = PhaseDeciding
		raw, err := p.source.Decide(ctx, p.snapshot(r))
		if err != nil {
			r.phase = PhaseFailed
			return p.finalize(r, false, "", fmt.Sprintf("decision source error: %v", err))
		}

		cmd, err := decision.Parse(raw)
		if err != nil {
			if terminal, result := p.recordValidationFailure(ctx, r, err); terminal {
				return result
			}
			continue
		}
		r.consecutiveFailures = 0

		if cmd.Finish != nil {
			r.phase = PhaseFinishing
			r.history.Append(models.Step{
				Kind:       models.StepFinish,
				Preview:    models.TruncatePreview(cmd.Finish.Summary, previewMax),
				Successful: true,
			})
			return p.finalize(r, true, cmd.Finish.Summary, "")
		}

		if err := r.tracker.CheckAndConsume(p.stepCost(*cmd, raw)); err != nil {
			if errors.Is(err, budget.ErrBudgetExceeded) {
				r.phase = PhaseBudgetExceeded
				p.emit(ctx, observability.Event{
					Type:     observability.EventTypeBudget,
					TenantID: r.tenant.String(),
					RunID:    r.id,
					Error:    err.Error(),
				})
				r.history.Append(models.Step{
					Kind:    models.StepFailure,
					Preview: "budget exhausted before " + cmd.Kind() + " step",
					Error:   err.Error(),
				})
				return p.finalize(r, false, "", err.Error())
			}
			r.phase = PhaseFailed
			return p.finalize(r, false, "", fmt.Sprintf("budget tracking error: %v", err))
		}

		switch {
		case cmd.Tool != nil:
			p.stepTool(ctx, r, cmd.Tool)
		case cmd.Search != nil:
			p.stepSearch(ctx, r, cmd.Search)
		case cmd.Sandbox != nil:
			p.stepSandbox(ctx, r, cmd.Sandbox)
		}
	}
}

// recordValidationFailure appends a failure step for a malformed command
// and decides whether the run continues. The bound is on consecutive
// failures; any valid command resets it.
func (p *Planner) recordValidationFailure(ctx context.Context, r *run, parseErr error) (bool, models.ExecutionResult) {
	r.consecutiveFailures++
	r.logf("malformed command (%d consecutive): %v", r.consecutiveFailures, parseErr)
	if p.metrics != nil {
		p.metrics.ValidationFailureCounter.WithLabelValues(r.tenant.String()).Inc()
	}
	p.emit(ctx, observability.Event{
		Type:     observability.EventTypeValidation,
		TenantID: r.tenant.String(),
		RunID:    r.id,
		Error:    parseErr.Error(),
	})
	r.history.Append(models.Step{
		Kind:    models.StepFailure,
		Preview: models.TruncatePreview("malformed command: "+parseErr.Error(), previewMax),
		Error:   parseErr.Error(),
	})

	if r.consecutiveFailures >= p.config.MaxValidationFailures {
		r.phase = PhaseFailed
		msg := fmt.Sprintf("%d consecutive validation failures, last: %v",
			r.consecutiveFailures, parseErr)
		return true, p.finalize(r, false, "", msg)
	}
	return false, models.ExecutionResult{}
}

func (p *Planner) stepTool(ctx context.Context, r *run, cmd *decision.ToolCommand) {
	r.phase = PhaseActingTool
	res := p.dispatcher.Dispatch(ctx, r.tenant, cmd.Provider, cmd.Name, cmd.Payload)

	key := uuid.NewString()
	r.raw[key] = res

	step := models.Step{
		Kind:       models.StepTool,
		Successful: res.Successful,
		ResultKey:  key,
		Error:      res.Error,
	}
	if res.Successful {
		step.Preview = models.TruncatePreview(
			fmt.Sprintf("%s.%s ok, data keys %v", cmd.Provider, cmd.Name, res.PayloadKeys), previewMax)
	} else {
		step.Preview = models.TruncatePreview(
			fmt.Sprintf("%s.%s failed: %s", cmd.Provider, cmd.Name, res.Error), previewMax)
	}
	r.history.Append(step)
}

func (p *Planner) stepSearch(ctx context.Context, r *run, cmd *decision.SearchCommand) {
	r.phase = PhaseSearching
	matches := p.discovery.Search(r.tenant, cmd.Query, cmd.Limit)
	r.searchCount++
	if p.metrics != nil {
		p.metrics.SearchCounter.WithLabelValues(r.tenant.String()).Inc()
	}
	p.emit(ctx, observability.Event{
		Type:     observability.EventTypeSearch,
		TenantID: r.tenant.String(),
		RunID:    r.id,
		Data:     map[string]any{"query": cmd.Query, "matches": len(matches)},
	})

	descriptors := make([]models.ToolDescriptor, len(matches))
	for i, m := range matches {
		descriptors[i] = m.Descriptor
	}
	// Search results feed the next snapshot directly; they are not raw
	// outputs, so the step carries no result key.
	r.searchResults = descriptors

	r.history.Append(models.Step{
		Kind:       models.StepSearch,
		Preview:    models.TruncatePreview(fmt.Sprintf("search %q: %d matches", cmd.Query, len(matches)), previewMax),
		Successful: true,
	})
}

func (p *Planner) stepSandbox(ctx context.Context, r *run, cmd *decision.SandboxCommand) {
	r.phase = PhaseActingSandbox
	execCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, time.Duration(cmd.Timeout)*time.Second)
		defer cancel()
	}
	res, err := p.sandbox.Execute(execCtx, r.tenant, cmd.Code)

	key := uuid.NewString()
	r.raw[key] = res

	label := cmd.Label
	if label == "" {
		label = "sandbox"
	}
	step := models.Step{
		Kind:       models.StepSandbox,
		Successful: err == nil,
		ResultKey:  key,
	}
	if err != nil {
		step.Error = err.Error()
		step.Preview = models.TruncatePreview(fmt.Sprintf("%s failed: %v", label, err), previewMax)
	} else {
		step.Preview = models.TruncatePreview(fmt.Sprintf("%s ok: %s", label, res.Stdout), previewMax)
	}
	r.history.Append(step)
}

// snapshot builds the compact planning-state view for the decision source.
func (p *Planner) snapshot(r *run) decision.Snapshot {
	return decision.Snapshot{
		Task:            r.task,
		Inventory:       r.inventory,
		SearchResults:   r.searchResults,
		RecentSteps:     r.history.Window(p.config.StepWindow),
		BudgetRemaining: r.tracker.Remaining(),
		SearchCount:     r.searchCount,
	}
}

// stepCost converts one step into budget units. Steps count flat unless a
// per-tool override applies; the token unit uses the usual
// four-characters-per-token estimate on the raw command.
func (p *Planner) stepCost(cmd decision.Command, rawCommand string) int {
	if p.config.BudgetUnit == models.UnitTokens {
		cost := len(rawCommand) / 4
		if cost < 1 {
			cost = 1
		}
		return cost
	}
	if cmd.Tool != nil {
		if cost, ok := p.config.ToolCosts[cmd.Tool.Provider+"."+cmd.Tool.Name]; ok && cost > 0 {
			return cost
		}
	}
	return 1
}

// finalize assembles the terminal result from the run state.
func (p *Planner) finalize(r *run, success bool, summary, errMsg string) models.ExecutionResult {
	return models.ExecutionResult{
		Success:      success,
		FinalSummary: summary,
		RawOutputs:   r.raw,
		BudgetUsage:  r.tracker.State(),
		Steps:        r.history.All(),
		Logs:         r.logs,
		Error:        errMsg,
	}
}

func (p *Planner) emit(ctx context.Context, event observability.Event) {
	if p.timeline != nil {
		p.timeline.Emit(ctx, event)
	}
}
