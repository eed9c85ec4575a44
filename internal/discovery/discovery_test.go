package discovery

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/conduit/internal/providers"
	"github.com/haasonsaas/conduit/internal/registry"
	"github.com/haasonsaas/conduit/pkg/models"
)

type fakeClient struct {
	name  string
	tools []providers.ToolSpec
}

func (f *fakeClient) Name() string                { return f.name }
func (f *fakeClient) Tools() []providers.ToolSpec { return f.tools }
func (f *fakeClient) Invoke(ctx context.Context, tool string, payload map[string]any) (map[string]any, error) {
	return nil, nil
}

func seedRegistry(t *testing.T) (*registry.Registry, models.TenantID) {
	t.Helper()
	reg := registry.New()
	tenant := models.TenantID("acme")
	reg.Register(tenant, &fakeClient{
		name: "slack",
		tools: []providers.ToolSpec{
			{
				Name:         "post_message",
				Description:  "Post a message to a Slack channel",
				InputSchema:  json.RawMessage(`{"type":"object"}`),
				OutputFields: []string{"channel", "ts"},
			},
			{
				Name:        "list_channels",
				Description: "List channels in the workspace",
			},
		},
	})
	reg.Register(tenant, &fakeClient{
		name: "telegram",
		tools: []providers.ToolSpec{
			{
				Name:        "send_message",
				Description: "Send a message to a Telegram chat",
			},
		},
	})
	return reg, tenant
}

func TestListProvidersIsSummaryTier(t *testing.T) {
	reg, tenant := seedRegistry(t)
	svc := NewService(reg)

	inv := svc.ListProviders(tenant)
	if len(inv) != 2 {
		t.Fatalf("inventory has %d providers, want 2", len(inv))
	}
	if inv[0].Provider != "slack" || inv[1].Provider != "telegram" {
		t.Fatalf("inventory order: %v", inv)
	}
	if len(inv[0].Tools) != 2 || inv[0].Tools[0] != "list_channels" {
		t.Fatalf("slack tools: %v", inv[0].Tools)
	}
	// The summary never carries schemas; the type itself has nowhere to put
	// one, which is the point.
}

func TestListProvidersEmptyTenant(t *testing.T) {
	svc := NewService(registry.New())
	if inv := svc.ListProviders("nobody"); len(inv) != 0 {
		t.Fatalf("empty tenant inventory: %v", inv)
	}
}

func TestSearchReturnsFullDescriptors(t *testing.T) {
	reg, tenant := seedRegistry(t)
	svc := NewService(reg)

	matches := svc.Search(tenant, "post message slack", 0)
	if len(matches) == 0 {
		t.Fatal("no matches")
	}
	top := matches[0].Descriptor
	if top.QualifiedName != "slack.post_message" {
		t.Fatalf("top match = %q", top.QualifiedName)
	}
	if len(top.InputSchema) == 0 {
		t.Fatal("full descriptor must carry the input schema")
	}
	if len(top.OutputFields) == 0 {
		t.Fatal("full descriptor must carry output fields")
	}
}

func TestSearchRanking(t *testing.T) {
	reg, tenant := seedRegistry(t)
	svc := NewService(reg)

	// "message" appears in two tool names; "telegram" only in the qualified
	// name and description of telegram.send_message, which must rank it
	// above slack's tools.
	matches := svc.Search(tenant, "telegram message", 0)
	if len(matches) < 2 {
		t.Fatalf("matches = %v", matches)
	}
	if got := matches[0].Descriptor.QualifiedName; got != "telegram.send_message" {
		t.Fatalf("top match = %q, want telegram.send_message", got)
	}
}

func TestSearchTenantScoped(t *testing.T) {
	reg, _ := seedRegistry(t)
	svc := NewService(reg)
	if matches := svc.Search("globex", "message", 0); len(matches) != 0 {
		t.Fatalf("foreign tenant saw matches: %v", matches)
	}
}

func TestSearchLimit(t *testing.T) {
	reg, tenant := seedRegistry(t)
	svc := NewService(reg)
	if matches := svc.Search(tenant, "message", 1); len(matches) != 1 {
		t.Fatalf("limit ignored: %d matches", len(matches))
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	reg, tenant := seedRegistry(t)
	svc := NewService(reg)
	if matches := svc.Search(tenant, "  !! ", 0); matches != nil {
		t.Fatalf("noise query matched: %v", matches)
	}
}
