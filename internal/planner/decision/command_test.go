package decision

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseToolCommand(t *testing.T) {
	cmd, err := Parse(`{"tool": {"provider": "slack", "name": "post_message", "payload": {"channel": "#general", "text": "hi"}}}`)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind() != "tool" {
		t.Fatalf("kind = %q", cmd.Kind())
	}
	if cmd.Tool.Provider != "slack" || cmd.Tool.Name != "post_message" {
		t.Fatalf("tool = %+v", cmd.Tool)
	}
	if cmd.Tool.Payload["channel"] != "#general" {
		t.Fatalf("payload = %v", cmd.Tool.Payload)
	}
}

func TestParseFinishCommand(t *testing.T) {
	cmd, err := Parse(`{"finish": {"summary": "posted the update"}}`)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind() != "finish" || cmd.Finish.Summary != "posted the update" {
		t.Fatalf("cmd = %+v", cmd)
	}
}

func TestParseFencedCommand(t *testing.T) {
	raw := "```json\n" + `{"search": {"query": "send message", "limit": 5}}` + "\n```"
	cmd, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind() != "search" || cmd.Search.Query != "send message" || cmd.Search.Limit != 5 {
		t.Fatalf("cmd = %+v", cmd.Search)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":            "",
		"prose":            "I think we should search for a messaging tool.",
		"no verb":          `{}`,
		"two verbs":        `{"search": {"query": "x"}, "finish": {"summary": "y"}}`,
		"unknown verb":     `{"think": {"about": "it"}}`,
		"payload not map":  `{"tool": {"provider": "slack", "name": "post", "payload": "hello"}}`,
		"missing provider": `{"tool": {"name": "post", "payload": {}}}`,
		"missing name":     `{"tool": {"provider": "slack", "payload": {}}}`,
		"blank query":      `{"search": {"query": "   "}}`,
		"limit too high":   `{"search": {"query": "x", "limit": 999}}`,
		"blank code":       `{"sandbox": {"code": ""}}`,
		"negative timeout": `{"sandbox": {"code": "print(1)", "timeout": -1}}`,
		"trailing content": `{"finish": {"summary": "done"}} extra`,
	}
	for name, raw := range cases {
		if _, err := Parse(raw); !errors.Is(err, ErrMalformedCommand) {
			t.Errorf("%s: err = %v, want ErrMalformedCommand", name, err)
		}
	}
}

func TestParseSandboxDefaults(t *testing.T) {
	cmd, err := Parse(`{"sandbox": {"code": "print(1)"}}`)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Sandbox.Timeout != 0 || cmd.Sandbox.Label != "" {
		t.Fatalf("sandbox = %+v", cmd.Sandbox)
	}
}

func TestScriptedSource(t *testing.T) {
	src := NewScriptedSource(`{"finish": {"summary": "a"}}`, `{"finish": {"summary": "b"}}`)
	ctx := context.Background()

	first, err := src.Decide(ctx, Snapshot{Task: "demo"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(first, `"a"`) {
		t.Fatalf("first = %q", first)
	}
	if _, err := src.Decide(ctx, Snapshot{}); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Decide(ctx, Snapshot{}); err == nil {
		t.Fatal("exhausted script did not error")
	}
	if len(src.Snapshots) != 3 {
		t.Fatalf("recorded %d snapshots", len(src.Snapshots))
	}
}
