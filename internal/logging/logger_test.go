package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_Format(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "info", "json").Info("hello", "job_id", "j1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json output not parseable: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "hello" || entry["job_id"] != "j1" {
		t.Errorf("entry = %v", entry)
	}

	buf.Reset()
	New(&buf, "warn", "text").Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info written at warn level: %s", buf.String())
	}
}

func TestWithFields_RequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "text"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	WithFields(ctx, "job_id", "j1").Info("import accepted")

	out := buf.String()
	for _, want := range []string{"request_id=req-42", "job_id=j1", "import accepted"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}

	buf.Reset()
	FromContext(context.Background()).Info("plain")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("request_id added without one in context: %s", buf.String())
	}
}
