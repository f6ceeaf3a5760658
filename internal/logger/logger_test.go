package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelInfo, "prod")
	l.Debug("hidden")
	l.Info("launch accepted", slog.String("launch_id", "lti1p3_launch_x"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "launch accepted" || rec["launch_id"] != "lti1p3_launch_x" || rec["service"] != "lti1p3-tool" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNew_ConsoleInDev(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelDebug, "dev").Debug("state written")
	if !strings.Contains(buf.String(), "state written") {
		t.Fatalf("missing message in %q", buf.String())
	}
	if strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("dev output should not be json: %q", buf.String())
	}
}
