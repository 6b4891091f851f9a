package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLoggerWritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug").With(map[string]any{"session_id": "s-1"})
	l.Info("stream complete", map[string]any{"chunks": 3})

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["message"] != "stream complete" || entry["level"] != "info" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["session_id"] != "s-1" {
		t.Fatalf("missing context field: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["chunks"] != float64(3) {
		t.Fatalf("missing fields: %v", entry)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")
	l.Info("dropped", nil)
	l.Debug("dropped", nil)
	l.Warn("kept", nil)
	if strings.Count(buf.String(), "\n") != 1 || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	} {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSugarSharesCoreAndLevel(t *testing.T) {
	var buf bytes.Buffer
	s := NewWithWriter(&buf, "info").With(map[string]any{"command": "generate"}).Sugar()
	s.Debugf("dropped %d", 1)
	s.Warnf("skipping %s: %v", "report.pdf", "no browser")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["message"] != "skipping report.pdf: no browser" || entry["level"] != "warn" || entry["command"] != "generate" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
