package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// TelegramAPI defines the Telegram operations the provider uses. The narrow
// interface allows mock injection during testing; *bot.Bot satisfies it.
type TelegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

var _ TelegramAPI = (*bot.Bot)(nil)

// TelegramClient exposes Telegram messaging as provider tools.
type TelegramClient struct {
	api TelegramAPI
}

// NewTelegramClient builds a Telegram provider client from a bot token.
func NewTelegramClient(token string) (*TelegramClient, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &TelegramClient{api: b}, nil
}

// NewTelegramClientWithAPI builds a Telegram provider client around an
// existing API handle.
func NewTelegramClientWithAPI(api TelegramAPI) *TelegramClient {
	return &TelegramClient{api: api}
}

// Name returns "telegram".
func (c *TelegramClient) Name() string { return "telegram" }

var telegramTools = []ToolSpec{
	{
		Name:        "send_message",
		Description: "Send a text message to a Telegram chat",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"chat_id": {"type": "string", "description": "Chat ID or @channelusername"},
				"text": {"type": "string", "description": "Message text"}
			},
			"required": ["chat_id", "text"],
			"additionalProperties": false
		}`),
		OutputFields: []string{"message_id", "chat_id"},
	},
}

// Tools returns the Telegram tool set.
func (c *TelegramClient) Tools() []ToolSpec { return telegramTools }

// Invoke executes a Telegram tool.
func (c *TelegramClient) Invoke(ctx context.Context, tool string, payload map[string]any) (map[string]any, error) {
	switch tool {
	case "send_message":
		return c.sendMessage(ctx, payload)
	default:
		return nil, fmt.Errorf("telegram: unknown tool %q", tool)
	}
}

func (c *TelegramClient) sendMessage(ctx context.Context, payload map[string]any) (map[string]any, error) {
	chatID, err := stringField(payload, "chat_id")
	if err != nil {
		return nil, err
	}
	text, err := stringField(payload, "text")
	if err != nil {
		return nil, err
	}

	sent, err := c.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: send message: %w", err)
	}
	return map[string]any{
		"message_id": sent.ID,
		"chat_id":    sent.Chat.ID,
	}, nil
}
