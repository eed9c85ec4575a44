package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackAPI defines the Slack operations the provider uses. The narrow
// interface allows mock injection during testing; *slack.Client satisfies it.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
}

var _ SlackAPI = (*slack.Client)(nil)

// SlackClient exposes Slack messaging as provider tools.
type SlackClient struct {
	api SlackAPI
}

// NewSlackClient builds a Slack provider client from a bot token.
func NewSlackClient(token string) *SlackClient {
	return &SlackClient{api: slack.New(token)}
}

// NewSlackClientWithAPI builds a Slack provider client around an existing
// API handle. Used by tests and callers that configure the SDK themselves.
func NewSlackClientWithAPI(api SlackAPI) *SlackClient {
	return &SlackClient{api: api}
}

// Name returns "slack".
func (c *SlackClient) Name() string { return "slack" }

var slackTools = []ToolSpec{
	{
		Name:        "post_message",
		Description: "Post a text message to a Slack channel",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"channel": {"type": "string", "description": "Channel ID or name"},
				"text": {"type": "string", "description": "Message text"}
			},
			"required": ["channel", "text"],
			"additionalProperties": false
		}`),
		OutputFields: []string{"channel", "ts"},
	},
	{
		Name:        "list_channels",
		Description: "List Slack channels visible to the bot",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {"type": "integer", "minimum": 1, "maximum": 1000}
			},
			"additionalProperties": false
		}`),
		OutputFields: []string{"channels"},
	},
}

// Tools returns the Slack tool set.
func (c *SlackClient) Tools() []ToolSpec { return slackTools }

// Invoke executes a Slack tool.
func (c *SlackClient) Invoke(ctx context.Context, tool string, payload map[string]any) (map[string]any, error) {
	switch tool {
	case "post_message":
		return c.postMessage(ctx, payload)
	case "list_channels":
		return c.listChannels(ctx, payload)
	default:
		return nil, fmt.Errorf("slack: unknown tool %q", tool)
	}
}

func (c *SlackClient) postMessage(ctx context.Context, payload map[string]any) (map[string]any, error) {
	channel, err := stringField(payload, "channel")
	if err != nil {
		return nil, err
	}
	text, err := stringField(payload, "text")
	if err != nil {
		return nil, err
	}

	postedChannel, timestamp, err := c.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err != nil {
		return nil, fmt.Errorf("slack: post message: %w", err)
	}
	return map[string]any{
		"channel": postedChannel,
		"ts":      timestamp,
	}, nil
}

func (c *SlackClient) listChannels(ctx context.Context, payload map[string]any) (map[string]any, error) {
	limit, err := intField(payload, "limit", 100)
	if err != nil {
		return nil, err
	}

	channels, _, err := c.api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
		Limit:           limit,
		ExcludeArchived: true,
	})
	if err != nil {
		return nil, fmt.Errorf("slack: list channels: %w", err)
	}

	listed := make([]any, 0, len(channels))
	for _, ch := range channels {
		listed = append(listed, map[string]any{
			"id":   ch.ID,
			"name": ch.Name,
		})
	}
	return map[string]any{"channels": listed}, nil
}
