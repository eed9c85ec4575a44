package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookClient posts JSON payloads to a configured endpoint. It covers
// generic "send this somewhere" integrations (incoming webhooks, internal
// services) that have no dedicated SDK.
type WebhookClient struct {
	endpoint string
	httpc    *http.Client
}

// maxWebhookResponseSize bounds how much of a webhook response is read back.
const maxWebhookResponseSize = 1 << 20 // 1MB

// NewWebhookClient builds a webhook provider client for the given endpoint.
func NewWebhookClient(endpoint string) *WebhookClient {
	return &WebhookClient{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns "webhook".
func (c *WebhookClient) Name() string { return "webhook" }

var webhookTools = []ToolSpec{
	{
		Name:        "post",
		Description: "POST a JSON body to the configured webhook endpoint",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"body": {"type": "object", "description": "JSON body to send"}
			},
			"required": ["body"],
			"additionalProperties": false
		}`),
		OutputFields: []string{"status", "response"},
	},
}

// Tools returns the webhook tool set.
func (c *WebhookClient) Tools() []ToolSpec { return webhookTools }

// Invoke executes a webhook tool.
func (c *WebhookClient) Invoke(ctx context.Context, tool string, payload map[string]any) (map[string]any, error) {
	if tool != "post" {
		return nil, fmt.Errorf("webhook: unknown tool %q", tool)
	}

	body, ok := payload["body"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("field %q must be an object", "body")
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("webhook: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponseSize))
	if err != nil {
		return nil, fmt.Errorf("webhook: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("webhook: endpoint returned %d: %s", resp.StatusCode, string(raw))
	}

	// Pass structured responses through; anything else is kept as text.
	var decoded any
	response := any(string(raw))
	if json.Unmarshal(raw, &decoded) == nil {
		response = decoded
	}
	return map[string]any{
		"status":   resp.StatusCode,
		"response": response,
	}, nil
}
