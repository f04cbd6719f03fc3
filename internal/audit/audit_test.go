package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/54b3r/reqpilot-go/internal/pipeline"
	"github.com/54b3r/reqpilot-go/internal/state"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("REQPILOT_API_KEY", "rp-abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("REQPILOT_API_KEY", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("MODEL_PROVIDER", "azure"); got != "azure" {
		t.Errorf("expected 'azure', got %q", got)
	}
	if got := SanitiseKey("MODEL_PROVIDER", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.reqpilot/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.reqpilot/config.yaml" {
			t.Errorf("expected '~/.reqpilot/config.yaml', got %q", got)
		}
	}
}

func TestSlogSink_LogsFieldsNotContents(t *testing.T) {
	t.Parallel()
	var buf strings.Builder
	sink := NewSlogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	update := state.Update{
		Status:    state.Ptr(state.StatusCompleted),
		DesignDoc: state.Ptr("secret design content"),
	}
	if err := sink.RecordStage(context.Background(), "run-9", pipeline.StageDesign, 42*time.Millisecond, update); err != nil {
		t.Fatalf("record: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "run-9") || !strings.Contains(out, "design") {
		t.Errorf("entry missing identifiers: %s", out)
	}
	if !strings.Contains(out, "status,design_doc") {
		t.Errorf("entry missing touched fields: %s", out)
	}
	if strings.Contains(out, "secret design content") {
		t.Errorf("entry leaks stage output contents: %s", out)
	}
}

// countingSink counts RecordStage calls and optionally fails.
type countingSink struct {
	calls int
	fail  bool
}

func (c *countingSink) RecordStage(context.Context, string, pipeline.Name, time.Duration, state.Update) error {
	c.calls++
	if c.fail {
		return fmt.Errorf("sink down")
	}
	return nil
}

func TestMultiSink_AllSinksInvokedDespiteFailure(t *testing.T) {
	t.Parallel()
	bad := &countingSink{fail: true}
	good := &countingSink{}
	multi := NewMultiSink(bad, nil, good)

	err := multi.RecordStage(context.Background(), "run-1", pipeline.StageIntake, time.Millisecond, state.Update{})
	if err == nil {
		t.Errorf("want first error surfaced")
	}
	if bad.calls != 1 || good.calls != 1 {
		t.Errorf("want both sinks invoked, got bad=%d good=%d", bad.calls, good.calls)
	}
}
