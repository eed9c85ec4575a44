package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting runtime metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Tool dispatch volume and latency per tenant, provider, and tool
//   - Sandbox execution outcomes and durations
//   - Discovery search volume
//   - Planner run outcomes, budget exhaustion, and command validation failures
//
// Usage:
//
//	metrics := observability.NewMetrics(nil)
//	metrics.DispatchCounter.WithLabelValues("acme", "slack", "post_message", "success").Inc()
type Metrics struct {
	// DispatchCounter counts provider-tool invocations.
	// Labels: tenant, provider, tool, status (success|error)
	DispatchCounter *prometheus.CounterVec

	// DispatchDuration measures provider-tool invocation latency in seconds.
	// Labels: provider, tool
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	DispatchDuration *prometheus.HistogramVec

	// SandboxCounter counts sandbox executions.
	// Labels: tenant, status (success|error|timeout)
	SandboxCounter *prometheus.CounterVec

	// SandboxDuration measures sandbox execution time in seconds.
	// Labels: tenant
	// Buckets: 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s, 120s
	SandboxDuration *prometheus.HistogramVec

	// SearchCounter counts discovery searches.
	// Labels: tenant
	SearchCounter *prometheus.CounterVec

	// RunCounter counts planner executions by terminal state.
	// Labels: tenant, outcome (finished|budget_exceeded|failed)
	RunCounter *prometheus.CounterVec

	// RunSteps measures the number of steps per planner execution.
	// Labels: tenant
	// Buckets: 1, 2, 5, 10, 20, 50, 100
	RunSteps *prometheus.HistogramVec

	// BudgetConsumed measures budget units consumed per execution.
	// Labels: tenant, unit
	BudgetConsumed *prometheus.HistogramVec

	// ValidationFailureCounter counts malformed decision-source commands.
	// Labels: tenant
	ValidationFailureCounter *prometheus.CounterVec

	// ActiveRuns is a gauge tracking concurrently executing planner runs.
	// Labels: tenant
	ActiveRuns *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics with the given
// registerer. Passing nil registers with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		DispatchCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_dispatch_total",
				Help: "Total provider-tool invocations by tenant, provider, tool, and status",
			},
			[]string{"tenant", "provider", "tool", "status"},
		),

		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_dispatch_duration_seconds",
				Help:    "Duration of provider-tool invocations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"provider", "tool"},
		),

		SandboxCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_sandbox_total",
				Help: "Total sandbox executions by tenant and status",
			},
			[]string{"tenant", "status"},
		),

		SandboxDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_sandbox_duration_seconds",
				Help:    "Duration of sandbox executions in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"tenant"},
		),

		SearchCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_search_total",
				Help: "Total discovery searches by tenant",
			},
			[]string{"tenant"},
		),

		RunCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_runs_total",
				Help: "Total planner executions by tenant and terminal outcome",
			},
			[]string{"tenant", "outcome"},
		),

		RunSteps: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_run_steps",
				Help:    "Number of steps per planner execution",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
			},
			[]string{"tenant"},
		),

		BudgetConsumed: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_budget_consumed",
				Help:    "Budget units consumed per execution",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{"tenant", "unit"},
		),

		ValidationFailureCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_command_validation_failures_total",
				Help: "Malformed decision-source commands by tenant",
			},
			[]string{"tenant"},
		),

		ActiveRuns: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "conduit_active_runs",
				Help: "Concurrently executing planner runs by tenant",
			},
			[]string{"tenant"},
		),
	}
}
