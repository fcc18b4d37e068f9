package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/platinummonkey/keyhole/pkg/contextkeys"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		entry := decodeEntry(t, &buf)
		if entry["level"] != "INFO" {
			t.Errorf("Expected level INFO, got %v", entry["level"])
		}
		if entry["msg"] != "info message" {
			t.Errorf("Expected message 'info message', got %v", entry["msg"])
		}
	})

	t.Run("formatted error", func(t *testing.T) {
		buf.Reset()
		logger.Errorf("failed after %d tries", 3)
		entry := decodeEntry(t, &buf)
		if entry["msg"] != "failed after 3 tries" {
			t.Errorf("unexpected message %v", entry["msg"])
		}
	})
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithField("route", "/admin/").
		WithFields(map[string]interface{}{"status": 302}).
		WithError(errors.New("boom")).
		Warn("redirected")

	entry := decodeEntry(t, &buf)
	if entry["route"] != "/admin/" {
		t.Errorf("route field missing: %v", entry)
	}
	if entry["status"] != float64(302) {
		t.Errorf("status field missing: %v", entry)
	}
	if entry["error"] != "boom" {
		t.Errorf("error field missing: %v", entry)
	}
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = contextkeys.WithRequestID(ctx, "req-1")
	ctx = contextkeys.WithUsername(ctx, "alice")

	FromContext(ctx).Info("hello")

	raw := buf.String()
	entry := decodeEntry(t, &buf)
	if entry["request_id"] != "req-1" {
		t.Errorf("request_id missing: %v", entry)
	}
	if entry["user_hash"] != HashUsername("alice") {
		t.Errorf("user_hash missing: %v", entry)
	}
	if strings.Contains(raw, "alice") {
		t.Errorf("username logged in plaintext: %s", raw)
	}
}

func TestFromContext_TraceIDs(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
	ctx, span := tp.Tracer("test").Start(ctx, "request")
	defer span.End()

	FromContext(ctx).Info("traced")

	entry := decodeEntry(t, &buf)
	if entry["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id missing: %v", entry)
	}
	if entry["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("span_id missing: %v", entry)
	}

	buf.Reset()
	FromContext(WithLogger(context.Background(), NewLogger(InfoLevel, &buf))).Info("untraced")
	if _, ok := decodeEntry(t, &buf)["trace_id"]; ok {
		t.Error("trace_id logged without a span")
	}
}

func TestGetLogger_Default(t *testing.T) {
	if GetLogger(context.Background()) == nil {
		t.Error("GetLogger should never return nil")
	}
}

func TestNewComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewComponentLogger(WarnLevel, &buf)

	log.Info("quiet")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}

	log.WithField("addr", "203.0.113.7").Warn("loud")
	entry := decodeEntry(t, &buf)
	if entry["addr"] != "203.0.113.7" {
		t.Errorf("addr field missing: %v", entry)
	}
	if entry["level"] != "warning" {
		t.Errorf("expected logrus warning level, got %v", entry["level"])
	}
}
