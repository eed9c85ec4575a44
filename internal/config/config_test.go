package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conduit.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	t.Setenv("TEST_SLACK_TOKEN", "xoxb-secret")
	path := writeConfig(t, `
server:
  metrics_port: 9191
auth:
  jwt_secret: topsecret
  token_expiry: 1h
tenants:
  acme:
    slack:
      bot_token: ${TEST_SLACK_TOKEN}
    webhook:
      endpoint: https://hooks.example.com/acme
  globex:
    telegram:
      bot_token: "12345:abc"
planner:
  budget_limit: 15
  budget_unit: steps
sandbox:
  runner: python3
  timeout: 20s
logging:
  level: debug
  format: text
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.MetricsPort != 9191 {
		t.Fatalf("metrics port = %d", cfg.Server.MetricsPort)
	}
	if cfg.Auth.TokenExpiry != time.Hour {
		t.Fatalf("token expiry = %s", cfg.Auth.TokenExpiry)
	}
	if cfg.Tenants["acme"].Slack.BotToken != "xoxb-secret" {
		t.Fatalf("env expansion failed: %q", cfg.Tenants["acme"].Slack.BotToken)
	}
	if cfg.Planner.BudgetLimit != 15 {
		t.Fatalf("budget limit = %d", cfg.Planner.BudgetLimit)
	}
	if cfg.Sandbox.Runner != "python3" || cfg.Sandbox.Timeout != 20*time.Second {
		t.Fatalf("sandbox = %+v", cfg.Sandbox)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging level = %q", cfg.Logging.Level)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "tenants: {}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.MetricsPort != 9090 {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Auth.CacheTTL != 30*time.Second {
		t.Fatalf("cache ttl = %s", cfg.Auth.CacheTTL)
	}
	if cfg.Timeline.MaxEvents != 10000 {
		t.Fatalf("timeline max = %d", cfg.Timeline.MaxEvents)
	}
}

func TestLoadRejectsIncompleteProviderBlock(t *testing.T) {
	_, err := Load(writeConfig(t, `
tenants:
  acme:
    slack:
      bot_token: ""
`))
	if err == nil {
		t.Fatal("slack block without token accepted")
	}
}

func TestGrants(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
tenants:
  acme:
    slack:
      bot_token: xoxb-1
    telegram:
      bot_token: "1:a"
  globex:
    webhook:
      endpoint: https://hooks.example.com
`))
	if err != nil {
		t.Fatal(err)
	}
	grants := cfg.Grants()
	if len(grants["acme"]) != 2 {
		t.Fatalf("acme grants = %v", grants["acme"])
	}
	if len(grants["globex"]) != 1 || grants["globex"][0] != "webhook" {
		t.Fatalf("globex grants = %v", grants["globex"])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}
