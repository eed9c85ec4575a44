// Package sandbox runs tenant-submitted code in a child process. The
// executing tenant's identity crosses the process boundary only through an
// explicit serialized channel: environment variables and a JSON context
// file materialized into the ephemeral working directory. The child shares
// no memory with the runtime, so two tenants executing concurrently can
// never observe each other's identity.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/conduit/internal/observability"
	"github.com/haasonsaas/conduit/pkg/models"
)

// ErrSandboxTimeout indicates the child process exceeded its deadline and
// was killed.
var ErrSandboxTimeout = errors.New("sandbox timed out")

const (
	// EnvTenantID carries the executing tenant's identity into the child.
	EnvTenantID = "CONDUIT_TENANT_ID"

	// EnvRunID carries the run correlation id into the child.
	EnvRunID = "CONDUIT_RUN_ID"

	// EnvContextFile points at the JSON context file in the working
	// directory.
	EnvContextFile = "CONDUIT_CONTEXT_FILE"

	contextFileName = "context.json"

	// DefaultTimeout bounds a single execution when the caller sets none.
	DefaultTimeout = 30 * time.Second

	// maxOutputBytes caps captured stdout and stderr each.
	maxOutputBytes = 1 << 20
)

// Config controls how the executor launches child processes.
type Config struct {
	// Runner is the interpreter executable, e.g. "python3". The code is
	// written to a file and passed as the runner's single argument.
	Runner string `yaml:"runner"`

	// Timeout bounds each execution. Zero means DefaultTimeout.
	Timeout time.Duration `yaml:"timeout"`

	// WorkDir is the parent for ephemeral execution directories. Empty
	// means the system temp dir.
	WorkDir string `yaml:"work_dir"`
}

// runContext is the serialized identity block the child reads. It is the
// only sanctioned way for sandboxed code to learn who it runs as.
type runContext struct {
	TenantID string `json:"tenant_id"`
	RunID    string `json:"run_id"`
	IssuedAt string `json:"issued_at"`
}

// Result is the outcome of one sandbox execution.
type Result struct {
	// Output is the decoded JSON value the child printed to stdout, when
	// stdout held exactly one JSON value.
	Output any

	// Stdout is the raw captured stdout, truncated to the output cap.
	Stdout string

	// Stderr is the raw captured stderr, truncated to the output cap.
	Stderr string

	// ExitCode is the child's exit status. -1 when the child was killed.
	ExitCode int

	// Duration is wall-clock execution time.
	Duration time.Duration
}

// Executor launches sandboxed executions. Safe for concurrent use; each
// execution gets its own working directory and process group.
type Executor struct {
	config   Config
	logger   *observability.Logger
	metrics  *observability.Metrics
	timeline *observability.Timeline
	tracer   *observability.Tracer
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger attaches a logger.
func WithLogger(logger *observability.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithMetrics attaches prometheus metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(e *Executor) { e.metrics = metrics }
}

// WithTimeline attaches the diagnostic event timeline.
func WithTimeline(timeline *observability.Timeline) Option {
	return func(e *Executor) { e.timeline = timeline }
}

// WithTracer attaches an OpenTelemetry tracer.
func WithTracer(tracer *observability.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

// NewExecutor creates an executor. An empty runner defaults to python3.
func NewExecutor(config Config, opts ...Option) *Executor {
	if config.Runner == "" {
		config.Runner = "python3"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	e := &Executor{config: config}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs code as the given tenant and returns the captured result.
// The deadline is the tighter of the executor timeout and the caller's
// context; on expiry the whole process group is killed and
// ErrSandboxTimeout is returned alongside whatever output was captured.
// Plain caller cancellation is reported as cancellation, not timeout.
func (e *Executor) Execute(ctx context.Context, tenant models.TenantID, code string) (Result, error) {
	start := time.Now()
	runID := observability.GetRunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
	}

	if e.tracer != nil {
		spanCtx, span := e.tracer.Start(ctx, "sandbox.execute",
			attribute.String("tenant", tenant.String()),
		)
		defer span.End()
		ctx = spanCtx
	}
	e.emit(ctx, observability.Event{
		Type:     observability.EventTypeSandboxStart,
		TenantID: tenant.String(),
		RunID:    runID,
	})

	result, err := e.run(ctx, tenant, runID, code)
	result.Duration = time.Since(start)

	status := "ok"
	switch {
	case errors.Is(err, ErrSandboxTimeout):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	if e.metrics != nil {
		e.metrics.SandboxCounter.WithLabelValues(tenant.String(), status).Inc()
		e.metrics.SandboxDuration.WithLabelValues(tenant.String()).Observe(result.Duration.Seconds())
	}
	e.emit(ctx, observability.Event{
		Type:     observability.EventTypeSandboxEnd,
		TenantID: tenant.String(),
		RunID:    runID,
		Duration: result.Duration,
		Error:    errString(err),
		Data:     map[string]any{"exit_code": result.ExitCode},
	})
	if e.logger != nil {
		if err != nil {
			e.logger.Warn(ctx, "sandbox execution failed",
				"status", status, "exit_code", result.ExitCode, "error", err)
		} else {
			e.logger.Debug(ctx, "sandbox execution complete",
				"duration_ms", result.Duration.Milliseconds())
		}
	}
	return result, err
}

func (e *Executor) run(ctx context.Context, tenant models.TenantID, runID, code string) (Result, error) {
	if strings.TrimSpace(code) == "" {
		return Result{ExitCode: -1}, errors.New("empty code")
	}

	dir, err := os.MkdirTemp(e.config.WorkDir, "conduit-sandbox-")
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(dir)

	scriptPath := filepath.Join(dir, "main")
	if err := os.WriteFile(scriptPath, []byte(code), 0o600); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("write script: %w", err)
	}

	contextPath := filepath.Join(dir, contextFileName)
	block, err := json.Marshal(runContext{
		TenantID: tenant.String(),
		RunID:    runID,
		IssuedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("marshal context: %w", err)
	}
	if err := os.WriteFile(contextPath, block, 0o600); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("write context: %w", err)
	}

	ctx, cancel := context.WithTimeoutCause(ctx, e.config.Timeout,
		fmt.Errorf("%w after %s", ErrSandboxTimeout, e.config.Timeout))
	defer cancel()

	cmd := exec.Command(e.config.Runner, scriptPath)
	cmd.Dir = dir
	// The child gets a minimal environment. Tenant identity travels only
	// through these variables and the context file, never through any
	// shared in-process state.
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + dir,
		EnvTenantID + "=" + tenant.String(),
		EnvRunID + "=" + runID,
		EnvContextFile + "=" + contextPath,
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &boundedWriter{buf: &stdout, limit: maxOutputBytes}
	cmd.Stderr = &boundedWriter{buf: &stderr, limit: maxOutputBytes}

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("start runner %q: %w", e.config.Runner, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	killed := false
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		killed = true
		// Kill the whole process group so grandchildren die with the
		// child.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
	}

	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(cmd, waitErr),
	}
	if killed {
		cause := context.Cause(ctx)
		switch {
		case errors.Is(cause, ErrSandboxTimeout):
			// The executor's own deadline fired.
			return result, cause
		case errors.Is(cause, context.DeadlineExceeded):
			// A tighter caller deadline fired first.
			return result, fmt.Errorf("%w: caller deadline exceeded", ErrSandboxTimeout)
		default:
			return result, fmt.Errorf("sandbox cancelled: %w", cause)
		}
	}
	if waitErr != nil {
		return result, fmt.Errorf("sandbox exited %d: %s", result.ExitCode, firstLine(result.Stderr))
	}
	output, err := decodeOutput(result.Stdout)
	if err != nil {
		return result, err
	}
	result.Output = output
	return result, nil
}

// decodeOutput parses stdout as a single JSON value. The result channel is
// the contract: stdout that fails to parse is a failed execution, not a
// degraded success.
func decodeOutput(stdout string) (any, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
		return nil, fmt.Errorf("malformed sandbox output %q: %v", firstLine(trimmed), err)
	}
	return value, nil
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	if s == "" {
		return "(no stderr)"
	}
	return s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// boundedWriter keeps at most limit bytes; overflow is discarded so a
// runaway child cannot exhaust memory through its output streams.
type boundedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}

func (e *Executor) emit(ctx context.Context, event observability.Event) {
	if e.timeline != nil {
		e.timeline.Emit(ctx, event)
	}
}
