package models

import (
	"reflect"
	"testing"
)

func TestNormalizeTenantID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want TenantID
	}{
		{"plain", "acme", "acme"},
		{"uppercase", "ACME", "acme"},
		{"whitespace", "  acme \n", "acme"},
		{"empty", "", DefaultTenant},
		{"whitespace only", "   ", DefaultTenant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTenantID(tt.raw)
			if got != tt.want {
				t.Errorf("NormalizeTenantID(%q) = %q, want %q", tt.raw, got, tt.want)
			}
			// Normalization must be idempotent.
			if again := NormalizeTenantID(string(got)); again != got {
				t.Errorf("normalization not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestActionResultInvariant(t *testing.T) {
	success := ActionSuccess("slack", "post_message", map[string]any{"ts": "1", "channel": "C1"})
	if !success.Successful || success.Error != "" {
		t.Errorf("success envelope violated invariant: %+v", success)
	}
	if want := []string{"channel", "ts"}; !reflect.DeepEqual(success.PayloadKeys, want) {
		t.Errorf("PayloadKeys = %v, want %v", success.PayloadKeys, want)
	}

	failure := ActionFailure("slack", "post_message", "boom")
	if failure.Successful || failure.Error == "" {
		t.Errorf("failure envelope violated invariant: %+v", failure)
	}
	if failure.Data != nil {
		t.Errorf("failure envelope carried data: %v", failure.Data)
	}

	// An empty failure message must still yield a non-empty error.
	blank := ActionFailure("slack", "post_message", "")
	if blank.Error == "" {
		t.Error("ActionFailure with empty message produced empty Error")
	}
}

func TestActionSuccessNilData(t *testing.T) {
	res := ActionSuccess("telegram", "send_message", nil)
	if !res.Successful {
		t.Fatal("expected success")
	}
	if res.PayloadKeys != nil {
		t.Errorf("PayloadKeys for nil data = %v, want nil", res.PayloadKeys)
	}
}

func TestStepHistoryWindow(t *testing.T) {
	var h StepHistory
	for i := 0; i < 15; i++ {
		h.Append(Step{Kind: StepTool, Preview: "step"})
	}
	if h.Len() != 15 {
		t.Fatalf("Len = %d, want 15", h.Len())
	}

	window := h.Window(10)
	if len(window) != 10 {
		t.Fatalf("Window(10) returned %d steps", len(window))
	}
	if window[0].Index != 5 || window[9].Index != 14 {
		t.Errorf("window bounds = [%d, %d], want [5, 14]", window[0].Index, window[9].Index)
	}

	all := h.All()
	for i, step := range all {
		if step.Index != i {
			t.Errorf("step %d has index %d", i, step.Index)
		}
	}

	if got := h.Window(0); got != nil {
		t.Errorf("Window(0) = %v, want nil", got)
	}
	if got := h.Window(100); len(got) != 15 {
		t.Errorf("Window(100) returned %d steps, want 15", len(got))
	}
}

func TestTruncatePreview(t *testing.T) {
	if got := TruncatePreview("short", 80); got != "short" {
		t.Errorf("TruncatePreview left short string modified: %q", got)
	}
	long := TruncatePreview("abcdefghij", 4)
	if long != "abcd...[truncated]" {
		t.Errorf("TruncatePreview = %q", long)
	}
	// Multi-byte runes must not be split.
	unicode := TruncatePreview("héllo wörld", 6)
	if unicode != "héllo ...[truncated]" {
		t.Errorf("TruncatePreview unicode = %q", unicode)
	}
}

func TestToolDescriptorSummary(t *testing.T) {
	full := ToolDescriptor{
		Provider:      "slack",
		Tool:          "post_message",
		QualifiedName: "slack.post_message",
		Description:   "Post a message",
		InputSchema:   []byte(`{"type":"object"}`),
		OutputFields:  []string{"ts"},
	}
	summary := full.Summary()
	if summary.InputSchema != nil || summary.OutputFields != nil {
		t.Errorf("Summary retained full-tier fields: %+v", summary)
	}
	if summary.QualifiedName != "slack.post_message" {
		t.Errorf("Summary dropped identity: %+v", summary)
	}
	// The original must be untouched.
	if full.InputSchema == nil {
		t.Error("Summary mutated the source descriptor")
	}
}
