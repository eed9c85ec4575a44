// Package config loads the runtime's YAML configuration. Environment
// variables are expanded before parsing, so credentials can live outside
// the file as ${VAR} references.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/conduit/internal/observability"
	"github.com/haasonsaas/conduit/internal/planner"
	"github.com/haasonsaas/conduit/internal/planner/decision"
	"github.com/haasonsaas/conduit/internal/sandbox"
)

// Config is the top-level runtime configuration.
type Config struct {
	Server   ServerConfig              `yaml:"server"`
	Auth     AuthConfig                `yaml:"auth"`
	Tenants  map[string]TenantConfig   `yaml:"tenants"`
	Planner  planner.Config            `yaml:"planner"`
	Decision decision.AnthropicConfig  `yaml:"decision"`
	Sandbox  sandbox.Config            `yaml:"sandbox"`
	Logging  observability.LogConfig   `yaml:"logging"`
	Tracing  observability.TraceConfig `yaml:"tracing"`
	Timeline TimelineConfig            `yaml:"timeline"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	MetricsPort int    `yaml:"metrics_port"`
}

type AuthConfig struct {
	// JWTSecret enables token-based tenant resolution when set.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenExpiry bounds issued token lifetime.
	TokenExpiry time.Duration `yaml:"token_expiry"`

	// CacheTTL bounds how long authorization decisions are cached.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// TenantConfig declares one tenant's provider credentials. A provider is
// configured for the tenant exactly when its block is present.
type TenantConfig struct {
	Slack    *SlackConfig    `yaml:"slack,omitempty"`
	Telegram *TelegramConfig `yaml:"telegram,omitempty"`
	Webhook  *WebhookConfig  `yaml:"webhook,omitempty"`
}

type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
}

type WebhookConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type TimelineConfig struct {
	MaxEvents int `yaml:"max_events"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}
	if cfg.Auth.CacheTTL == 0 {
		cfg.Auth.CacheTTL = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Timeline.MaxEvents == 0 {
		cfg.Timeline.MaxEvents = 10000
	}
}

// Validate rejects configurations the runtime cannot start with.
func (c *Config) Validate() error {
	for name, tenant := range c.Tenants {
		if name == "" {
			return fmt.Errorf("tenant with empty name")
		}
		if tenant.Slack != nil && tenant.Slack.BotToken == "" {
			return fmt.Errorf("tenant %q: slack block missing bot_token", name)
		}
		if tenant.Telegram != nil && tenant.Telegram.BotToken == "" {
			return fmt.Errorf("tenant %q: telegram block missing bot_token", name)
		}
		if tenant.Webhook != nil && tenant.Webhook.Endpoint == "" {
			return fmt.Errorf("tenant %q: webhook block missing endpoint", name)
		}
	}
	if c.Planner.BudgetLimit < 0 {
		return fmt.Errorf("planner.budget_limit must not be negative")
	}
	return nil
}

// Grants derives the tenant→provider authorization map from the tenant
// blocks: a tenant is authorized for exactly the providers it has
// credentials for.
func (c *Config) Grants() map[string][]string {
	grants := make(map[string][]string, len(c.Tenants))
	for name, tenant := range c.Tenants {
		var providers []string
		if tenant.Slack != nil {
			providers = append(providers, "slack")
		}
		if tenant.Telegram != nil {
			providers = append(providers, "telegram")
		}
		if tenant.Webhook != nil {
			providers = append(providers, "webhook")
		}
		grants[name] = providers
	}
	return grants
}
