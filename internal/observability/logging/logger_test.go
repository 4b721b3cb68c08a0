package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerJSONIncludesService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "estate-api", "info", "json")
	logger.Debug("hidden")
	logger.Info("document_uploaded", "document_id", "doc-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected debug to be filtered, got %d lines", len(lines))
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if entry["service"] != "estate-api" || entry["msg"] != "document_uploaded" || entry["document_id"] != "doc-1" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "estate-worker", "debug", "TEXT").Debug("tick")
	if !strings.Contains(buf.String(), "msg=tick") || !strings.Contains(buf.String(), "service=estate-worker") {
		t.Fatalf("unexpected text output %q", buf.String())
	}
}

func TestFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(NewLogger(&buf, "svc", "info", "json"))
	defer slog.SetDefault(previous)

	ctx := WithRequestID(context.Background(), "req-42")
	FromContext(ctx).Info("http_request")
	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Fatalf("expected request id in %q", buf.String())
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Fatalf("expected empty request id for bare context")
	}
}
