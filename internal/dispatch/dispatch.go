// Package dispatch executes tool invocations against tenant-scoped
// provider clients and folds every outcome into a uniform result envelope.
//
// The pipeline is strictly ordered: resolve the provider, resolve the
// tool, authorize, validate the payload, and only then touch the provider.
// A request that fails any earlier stage never generates provider traffic.
// Provider panics are contained here; they surface as a failed envelope,
// never as a crashed planning loop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/conduit/internal/auth"
	"github.com/haasonsaas/conduit/internal/observability"
	"github.com/haasonsaas/conduit/internal/providers"
	"github.com/haasonsaas/conduit/internal/registry"
	"github.com/haasonsaas/conduit/pkg/models"
)

// Dispatcher routes tool invocations through resolution, authorization,
// and payload validation before handing them to the provider client.
// It is safe for concurrent use across tenants and executions.
type Dispatcher struct {
	registry *registry.Registry
	authz    auth.Authorizer
	logger   *observability.Logger
	metrics  *observability.Metrics
	timeline *observability.Timeline
	tracer   *observability.Tracer

	mu         sync.Mutex
	validators map[validatorKey]validatorEntry
}

// validatorKey identifies one tool's compiled schema. Keyed without the
// registry version so a rebuild overwrites the stale entry instead of
// leaving it behind.
type validatorKey struct {
	tenant   models.TenantID
	provider string
	tool     string
}

type validatorEntry struct {
	version uint64
	schema  *jsonschema.Schema
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger attaches a logger.
func WithLogger(logger *observability.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics attaches prometheus metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = metrics }
}

// WithTimeline attaches the diagnostic event timeline.
func WithTimeline(timeline *observability.Timeline) Option {
	return func(d *Dispatcher) { d.timeline = timeline }
}

// WithTracer attaches an OpenTelemetry tracer.
func WithTracer(tracer *observability.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = tracer }
}

// NewDispatcher creates a dispatcher over the registry, guarded by the
// given authorizer. A nil authorizer allows everything.
func NewDispatcher(reg *registry.Registry, authz auth.Authorizer, opts ...Option) *Dispatcher {
	if authz == nil {
		authz = auth.AllowAll{}
	}
	d := &Dispatcher{
		registry:   reg,
		authz:      authz,
		validators: make(map[validatorKey]validatorEntry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch invokes tool on provider for the tenant and returns the result
// envelope. Every outcome, success or failure, comes back as an envelope
// honoring the invariant that exactly one of the success payload and the
// error message is populated.
func (d *Dispatcher) Dispatch(ctx context.Context, tenant models.TenantID, provider, tool string, payload map[string]any) models.ActionResult {
	start := time.Now()
	var span trace.Span
	if d.tracer != nil {
		ctx, span = d.tracer.Start(ctx, "dispatch",
			attribute.String("tenant", tenant.String()),
			attribute.String("provider", provider),
			attribute.String("tool", tool),
		)
		defer span.End()
	}
	d.emit(ctx, observability.Event{
		Type:     observability.EventTypeDispatchStart,
		TenantID: tenant.String(),
		Provider: provider,
		Tool:     tool,
	})

	result, status := d.dispatch(ctx, tenant, provider, tool, payload)

	elapsed := time.Since(start)
	if d.metrics != nil {
		d.metrics.DispatchCounter.WithLabelValues(tenant.String(), provider, tool, status).Inc()
		d.metrics.DispatchDuration.WithLabelValues(provider, tool).Observe(elapsed.Seconds())
	}
	if result.Successful {
		d.emit(ctx, observability.Event{
			Type:     observability.EventTypeDispatchEnd,
			TenantID: tenant.String(),
			Provider: provider,
			Tool:     tool,
			Duration: elapsed,
		})
		if d.logger != nil {
			d.logger.Debug(ctx, "tool dispatched",
				"provider", provider, "tool", tool, "duration_ms", elapsed.Milliseconds())
		}
	} else {
		d.emit(ctx, observability.Event{
			Type:     observability.EventTypeDispatchError,
			TenantID: tenant.String(),
			Provider: provider,
			Tool:     tool,
			Duration: elapsed,
			Error:    result.Error,
		})
		if span != nil {
			d.tracer.RecordError(span, errors.New(result.Error))
		}
		if d.logger != nil {
			d.logger.Warn(ctx, "tool dispatch failed",
				"provider", provider, "tool", tool, "status", status, "error", result.Error)
		}
	}
	return result
}

// dispatch runs the ordered pipeline and reports the metric status label
// alongside the envelope.
func (d *Dispatcher) dispatch(ctx context.Context, tenant models.TenantID, provider, tool string, payload map[string]any) (models.ActionResult, string) {
	client, err := d.registry.Client(tenant, provider)
	if err != nil {
		return models.ActionFailure(provider, tool, err.Error()), "provider_not_found"
	}

	spec, ok := findTool(client, tool)
	if !ok {
		return models.ActionFailure(provider, tool,
			fmt.Sprintf("%v: %q on provider %q", ErrToolNotFound, tool, provider)), "tool_not_found"
	}

	allowed, err := d.authz.Authorized(ctx, tenant, provider)
	if err != nil {
		return models.ActionFailure(provider, tool,
			fmt.Sprintf("authorization check failed: %v", err)), "auth_error"
	}
	if !allowed {
		return models.ActionFailure(provider, tool,
			fmt.Sprintf("%v: tenant %q is not granted provider %q", auth.ErrUnauthorized, tenant, provider)), "unauthorized"
	}

	if payload == nil {
		payload = map[string]any{}
	}
	if err := d.validatePayload(tenant, provider, spec, payload); err != nil {
		return models.ActionFailure(provider, tool, err.Error()), "invalid_payload"
	}

	data, err := d.invoke(ctx, client, tool, payload)
	switch {
	case err == nil:
		return models.ActionSuccess(provider, tool, data), "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return models.ActionFailure(provider, tool,
			fmt.Sprintf("%s.%s timed out: %v", provider, tool, err)), "timeout"
	default:
		execErr := &ToolExecutionError{Provider: provider, Tool: tool, Err: err}
		return models.ActionFailure(provider, tool, execErr.Error()), "error"
	}
}

// invoke calls the provider client with panic containment. A panicking
// provider is reported as an execution error, not propagated.
func (d *Dispatcher) invoke(ctx context.Context, client providers.Client, tool string, payload map[string]any) (data map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return client.Invoke(ctx, tool, payload)
}

// validatePayload checks the payload against the tool's JSON Schema.
// Compiled schemas are cached per tool and stamped with the tenant's
// registry version; a rebuild recompiles in place of the stale entry.
func (d *Dispatcher) validatePayload(tenant models.TenantID, provider string, spec providers.ToolSpec, payload map[string]any) error {
	if len(spec.InputSchema) == 0 {
		return nil
	}
	schema, err := d.compiledSchema(tenant, provider, spec)
	if err != nil {
		return &ValidationError{Provider: provider, Tool: spec.Name,
			Causes: []string{fmt.Sprintf("schema compile: %v", err)}}
	}
	if err := schema.Validate(normalizeJSON(payload)); err != nil {
		return &ValidationError{Provider: provider, Tool: spec.Name,
			Causes: validationCauses(err)}
	}
	return nil
}

func (d *Dispatcher) compiledSchema(tenant models.TenantID, provider string, spec providers.ToolSpec) (*jsonschema.Schema, error) {
	key := validatorKey{tenant: tenant, provider: provider, tool: spec.Name}
	version := d.registry.Version(tenant)

	d.mu.Lock()
	defer d.mu.Unlock()
	if entry, ok := d.validators[key]; ok && entry.version == version {
		return entry.schema, nil
	}

	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("inmem://%s/%s.%s@%d", tenant, provider, spec.Name, version)
	if err := compiler.AddResource(url, strings.NewReader(string(spec.InputSchema))); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	d.validators[key] = validatorEntry{version: version, schema: schema}
	return schema, nil
}

// findTool locates a tool spec on the client by name.
func findTool(client providers.Client, tool string) (providers.ToolSpec, bool) {
	for _, spec := range client.Tools() {
		if spec.Name == tool {
			return spec, true
		}
	}
	return providers.ToolSpec{}, false
}

// validationCauses flattens a jsonschema validation error into short
// human-readable causes.
func validationCauses(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	leaves := ve.BasicOutput().Errors
	causes := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		if leaf.Error == "" {
			continue
		}
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		causes = append(causes, fmt.Sprintf("%s: %s", loc, leaf.Error))
	}
	if len(causes) == 0 {
		return []string{ve.Message}
	}
	return causes
}

// normalizeJSON rewrites Go-native numeric types into the shapes the JSON
// Schema validator expects from decoded JSON.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeJSON(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

func (d *Dispatcher) emit(ctx context.Context, event observability.Event) {
	if d.timeline != nil {
		d.timeline.Emit(ctx, event)
	}
}
