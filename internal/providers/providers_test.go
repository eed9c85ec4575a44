package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/slack-go/slack"
)

type fakeSlackAPI struct {
	postedChannel string
	postCalls     int
	postErr       error
}

func (f *fakeSlackAPI) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.postCalls++
	f.postedChannel = channelID
	if f.postErr != nil {
		return "", "", f.postErr
	}
	return channelID, "1724967600.000100", nil
}

func (f *fakeSlackAPI) GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error) {
	ch := slack.Channel{}
	ch.ID = "C123"
	ch.Name = "general"
	return []slack.Channel{ch}, "", nil
}

func TestSlackPostMessage(t *testing.T) {
	api := &fakeSlackAPI{}
	client := NewSlackClientWithAPI(api)

	data, err := client.Invoke(context.Background(), "post_message", map[string]any{
		"channel": "C123",
		"text":    "hello",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if data["channel"] != "C123" {
		t.Errorf("channel = %v, want C123", data["channel"])
	}
	if data["ts"] == "" {
		t.Error("expected a timestamp in the result")
	}
}

func TestSlackPostMessageValidation(t *testing.T) {
	api := &fakeSlackAPI{}
	client := NewSlackClientWithAPI(api)

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"missing channel", map[string]any{"text": "hi"}},
		{"missing text", map[string]any{"channel": "C1"}},
		{"wrong type", map[string]any{"channel": 42, "text": "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := client.Invoke(context.Background(), "post_message", tt.payload); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	// Validation failure must not reach the network.
	if api.postCalls != 0 {
		t.Errorf("network was called %d times despite invalid payloads", api.postCalls)
	}
}

func TestSlackProviderError(t *testing.T) {
	api := &fakeSlackAPI{postErr: errors.New("channel_not_found")}
	client := NewSlackClientWithAPI(api)

	data, err := client.Invoke(context.Background(), "post_message", map[string]any{
		"channel": "C404",
		"text":    "hi",
	})
	if err == nil {
		t.Fatal("expected error from provider")
	}
	if data != nil {
		t.Errorf("error invocation returned payload: %v", data)
	}
}

func TestSlackListChannels(t *testing.T) {
	client := NewSlackClientWithAPI(&fakeSlackAPI{})

	data, err := client.Invoke(context.Background(), "list_channels", map[string]any{"limit": float64(10)})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	channels, ok := data["channels"].([]any)
	if !ok || len(channels) != 1 {
		t.Fatalf("channels = %v", data["channels"])
	}
}

func TestSlackUnknownTool(t *testing.T) {
	client := NewSlackClientWithAPI(&fakeSlackAPI{})
	if _, err := client.Invoke(context.Background(), "nonexistent", nil); err == nil {
		t.Error("expected error for unknown tool")
	}
}

type fakeTelegramAPI struct {
	lastParams *bot.SendMessageParams
}

func (f *fakeTelegramAPI) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.lastParams = params
	return &tgmodels.Message{ID: 7, Chat: tgmodels.Chat{ID: 99}}, nil
}

func TestTelegramSendMessage(t *testing.T) {
	api := &fakeTelegramAPI{}
	client := NewTelegramClientWithAPI(api)

	data, err := client.Invoke(context.Background(), "send_message", map[string]any{
		"chat_id": "@updates",
		"text":    "deploy done",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if data["message_id"] != 7 {
		t.Errorf("message_id = %v, want 7", data["message_id"])
	}
	if api.lastParams.ChatID != "@updates" {
		t.Errorf("ChatID = %v", api.lastParams.ChatID)
	}
}

func TestWebhookPost(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accepted":true}`))
	}))
	defer server.Close()

	client := NewWebhookClient(server.URL)
	data, err := client.Invoke(context.Background(), "post", map[string]any{
		"body": map[string]any{"event": "ping"},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if received["event"] != "ping" {
		t.Errorf("endpoint received %v", received)
	}
	if data["status"] != 200 {
		t.Errorf("status = %v", data["status"])
	}
}

func TestWebhookPostFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewWebhookClient(server.URL)
	if _, err := client.Invoke(context.Background(), "post", map[string]any{
		"body": map[string]any{},
	}); err == nil {
		t.Error("expected error for non-2xx response")
	}
}

func TestToolSpecSchemasAreValidJSON(t *testing.T) {
	clients := []Client{
		NewSlackClientWithAPI(&fakeSlackAPI{}),
		NewTelegramClientWithAPI(&fakeTelegramAPI{}),
		NewWebhookClient("http://localhost"),
	}
	for _, c := range clients {
		for _, spec := range c.Tools() {
			var decoded map[string]any
			if err := json.Unmarshal(spec.InputSchema, &decoded); err != nil {
				t.Errorf("%s.%s schema is not valid JSON: %v", c.Name(), spec.Name, err)
			}
			if spec.Description == "" {
				t.Errorf("%s.%s has no description", c.Name(), spec.Name)
			}
		}
	}
}
