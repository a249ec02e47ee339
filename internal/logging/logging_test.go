package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestStartSpanPropagatesTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug")
	ctx := WithLogger(context.Background(), logger)

	ctx, parent := StartSpan(ctx, "job")
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		t.Fatal("expected trace id")
	}
	parentSpan := SpanIDFromContext(ctx)

	child, span := StartSpan(ctx, "upload")
	if TraceIDFromContext(child) != traceID {
		t.Fatal("child span should share the trace id")
	}
	if SpanIDFromContext(child) == parentSpan {
		t.Fatal("child span should have its own id")
	}
	span.End()
	parent.End()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["span_name"] != "upload" || entry["parent_span_id"] != parentSpan || entry["trace_id"] != traceID {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

func TestWithJobID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "info"))
	ctx = WithJobID(ctx, "abc123")

	if JobIDFromContext(ctx) != "abc123" {
		t.Fatal("job id not stored")
	}
	FromContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), `"job_id":"abc123"`) {
		t.Fatalf("expected job id on log line: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("bogus") != slog.LevelInfo || ParseLevel("warning") != slog.LevelWarn {
		t.Fatal("unexpected level mapping")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger")
	}
}
