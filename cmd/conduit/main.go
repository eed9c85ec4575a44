// Command conduit is the CLI for the Conduit agent runtime: it runs tasks
// against a tenant's providers, inspects the tool inventory, and issues
// tenant tokens.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/conduit/internal/auth"
	"github.com/haasonsaas/conduit/internal/config"
	"github.com/haasonsaas/conduit/internal/discovery"
	"github.com/haasonsaas/conduit/internal/dispatch"
	"github.com/haasonsaas/conduit/internal/observability"
	"github.com/haasonsaas/conduit/internal/planner"
	"github.com/haasonsaas/conduit/internal/planner/decision"
	"github.com/haasonsaas/conduit/internal/providers"
	"github.com/haasonsaas/conduit/internal/registry"
	"github.com/haasonsaas/conduit/internal/sandbox"
	"github.com/haasonsaas/conduit/pkg/models"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	configPath string
	tenantFlag string
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "conduit",
		Short: "Conduit - multi-tenant agent execution runtime",
		Long: `Conduit runs tool-using agent tasks against per-tenant provider
configurations. Each run is driven by a Reason-Act loop under a hard
budget, with tool discovery, schema-validated dispatch, and sandboxed
code execution.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "conduit.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&tenantFlag, "tenant", "t", "default", "Tenant id")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildToolsCmd(),
		buildTokenCmd(),
	)
	return rootCmd
}

// runtime bundles the assembled components for one CLI invocation.
type runtime struct {
	cfg      *config.Config
	logger   *observability.Logger
	metrics  *observability.Metrics
	timeline *observability.Timeline
	registry *registry.Registry
	disc     *discovery.Service
	planner  *planner.Planner
	jwt      *auth.JWTService
	shutdown func(context.Context) error
}

// buildRuntime assembles the runtime from the config file. needSource
// controls whether a decision source is required; inventory commands work
// without one.
func buildRuntime(needSource bool) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.Logging)
	metrics := observability.NewMetrics(nil)
	timeline := observability.NewTimeline(cfg.Timeline.MaxEvents, logger)
	tracer, shutdown := observability.NewTracer(cfg.Tracing)

	reg := registry.New()
	for name, tenant := range cfg.Tenants {
		tenantID := models.NormalizeTenantID(name)
		if tenant.Slack != nil {
			reg.Register(tenantID, providers.NewSlackClient(tenant.Slack.BotToken))
		}
		if tenant.Telegram != nil {
			client, err := providers.NewTelegramClient(tenant.Telegram.BotToken)
			if err != nil {
				return nil, fmt.Errorf("tenant %q: telegram: %w", name, err)
			}
			reg.Register(tenantID, client)
		}
		if tenant.Webhook != nil {
			reg.Register(tenantID, providers.NewWebhookClient(tenant.Webhook.Endpoint))
		}
	}

	authz := auth.NewCachingAuthorizer(auth.NewStatic(cfg.Grants()), cfg.Auth.CacheTTL)
	disc := discovery.NewService(reg)
	dispatcher := dispatch.NewDispatcher(reg, authz,
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(metrics),
		dispatch.WithTimeline(timeline),
		dispatch.WithTracer(tracer),
	)
	executor := sandbox.NewExecutor(cfg.Sandbox,
		sandbox.WithLogger(logger),
		sandbox.WithMetrics(metrics),
		sandbox.WithTimeline(timeline),
		sandbox.WithTracer(tracer),
	)

	var source decision.Source
	if needSource {
		source, err = decision.NewAnthropicSource(cfg.Decision)
		if err != nil {
			return nil, err
		}
	}
	p := planner.New(cfg.Planner, source, disc, dispatcher, executor,
		planner.WithLogger(logger),
		planner.WithMetrics(metrics),
		planner.WithTimeline(timeline),
		planner.WithTracer(tracer),
	)

	var jwt *auth.JWTService
	if cfg.Auth.JWTSecret != "" {
		jwt = auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		timeline: timeline,
		registry: reg,
		disc:     disc,
		planner:  p,
		jwt:      jwt,
		shutdown: shutdown,
	}, nil
}

func buildRunCmd() *cobra.Command {
	var budgetLimit int
	var serveMetrics bool

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a task for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(true)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = rt.shutdown(ctx)
			}()

			if serveMetrics {
				addr := fmt.Sprintf("%s:%d", rt.cfg.Server.Host, rt.cfg.Server.MetricsPort)
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.Handler())
					if err := http.ListenAndServe(addr, mux); err != nil {
						slog.Error("metrics server stopped", "error", err)
					}
				}()
			}

			tenant := models.NormalizeTenantID(tenantFlag)
			result := rt.planner.Execute(cmd.Context(), tenant, args[0], budgetLimit)

			if err := printJSON(result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("run failed: %s", result.Error)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&budgetLimit, "budget", "b", 0, "Budget limit for this run (0 = configured default)")
	cmd.Flags().BoolVar(&serveMetrics, "serve-metrics", false, "Expose prometheus metrics during the run")
	return cmd
}

func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tenant's tool inventory",
	}
	cmd.AddCommand(buildToolsListCmd(), buildToolsSearchCmd())
	return cmd
}

func buildToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tenant's providers and tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(false)
			if err != nil {
				return err
			}
			tenant := models.NormalizeTenantID(tenantFlag)
			return printJSON(rt.disc.ListProviders(tenant))
		},
	}
}

func buildToolsSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the tenant's tools",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(false)
			if err != nil {
				return err
			}
			tenant := models.NormalizeTenantID(tenantFlag)
			return printJSON(rt.disc.Search(tenant, args[0], limit))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results (0 = default)")
	return cmd
}

func buildTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Issue a tenant token",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(false)
			if err != nil {
				return err
			}
			if rt.jwt == nil {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			token, err := rt.jwt.Generate(models.NormalizeTenantID(tenantFlag))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
