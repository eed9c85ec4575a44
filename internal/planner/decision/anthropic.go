package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Claude-backed decision source.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (required).
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the default API base URL.
	BaseURL string `yaml:"base_url"`

	// Model is the model id. Defaults to claude-sonnet-4-20250514.
	Model string `yaml:"model"`

	// MaxTokens bounds the reply. Defaults to 1024; commands are small.
	MaxTokens int `yaml:"max_tokens"`
}

// AnthropicSource asks Claude for the next command. Safe for concurrent
// use; each Decide call is an independent request.
type AnthropicSource struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicSource creates a Claude-backed decision source.
func NewAnthropicSource(config AnthropicConfig) (*AnthropicSource, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicSource{
		client:    anthropic.NewClient(options...),
		model:     config.Model,
		maxTokens: int64(config.MaxTokens),
	}, nil
}

// Decide sends the snapshot and returns Claude's raw reply text.
func (s *AnthropicSource) Decide(ctx context.Context, snapshot Snapshot) (string, error) {
	prompt, err := renderSnapshot(snapshot)
	if err != nil {
		return "", err
	}

	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: s.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var reply strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	return reply.String(), nil
}
