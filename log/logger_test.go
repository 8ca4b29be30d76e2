package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pithecene-io/juicer/types"
)

func TestLogger_RunContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(RunContext{RunID: "run-1", Transport: types.TransportStream}, &buf)

	l.Info("frame dropped", map[string]any{"kind": "truncated"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}
	if entry["run_id"] != "run-1" {
		t.Errorf("run_id = %v, want run-1", entry["run_id"])
	}
	if entry["transport"] != "stream" {
		t.Errorf("transport = %v, want stream", entry["transport"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["kind"] != "truncated" {
		t.Errorf("fields = %v, want kind=truncated", entry["fields"])
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(RunContext{RunID: "run-2"}, &buf).With(map[string]any{"training_id": "t-1"})
	l.Warn("session ended", nil)

	if !strings.Contains(buf.String(), `"training_id":"t-1"`) {
		t.Errorf("missing training_id in %s", buf.String())
	}
	if strings.Contains(buf.String(), `"transport"`) {
		t.Errorf("transport should be omitted when empty: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	for _, lvl := range []string{"", "debug", "INFO", "warn", "error"} {
		if _, err := ParseLevel(lvl); err != nil {
			t.Errorf("ParseLevel(%q) error: %v", lvl, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel(verbose) should fail")
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Debug("ignored", map[string]any{"a": 1})
	l.Sugar().Infof("ignored %d", 2)
}
