package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARNING", zerolog.WarnLevel},
		{"warn", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// TestNewWithWriterJSON verifies json output carries the component and fields
func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "INFO", Component: "merger", JSONFormat: true}, &buf)

	l.Info().Str("symbol", "EUR/USD").Msg("committed")
	l.Debug().Msg("dropped by level")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected json line, got %v", err)
	}
	if entry["component"] != "merger" {
		t.Errorf("Expected component merger, got %v", entry["component"])
	}
	if entry["symbol"] != "EUR/USD" {
		t.Errorf("Expected symbol field, got %v", entry["symbol"])
	}
}

// TestWithTraceContext verifies the trace id reaches both context and logger
func TestWithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&Config{Level: "DEBUG", JSONFormat: true}, &buf)

	ctx, l := WithTraceContext(NewContext(context.Background(), base))
	id := TraceID(ctx)
	if id == "" {
		t.Fatal("Expected trace id in context")
	}

	l.Info().Msg("hello")
	if !strings.Contains(buf.String(), id) {
		t.Errorf("Expected log line to include trace id %s, got %s", id, buf.String())
	}

	fromCtx := FromContext(ctx)
	buf.Reset()
	fromCtx.Info().Msg("again")
	if !strings.Contains(buf.String(), id) {
		t.Errorf("Expected context logger to carry trace id, got %s", buf.String())
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	defer SetDefault(prev)

	SetDefault(NewWithWriter(&Config{Level: "INFO", Component: "default", JSONFormat: true}, &buf))
	l := FromContext(context.Background())
	l.Info().Msg("x")

	if !strings.Contains(buf.String(), `"component":"default"`) {
		t.Errorf("Expected default logger output, got %s", buf.String())
	}
}
