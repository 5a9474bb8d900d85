package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("store")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("grant issued", "bundleId", "com.example.app")

	out := buf.String()
	if strings.Contains(out, `msg="INFO grant issued`) {
		t.Fatalf("unexpected nested severity prefix in message: %s", out)
	}
	if !strings.Contains(out, `msg="grant issued"`) {
		t.Fatalf("expected plain grant issued message, got: %s", out)
	}
	if !strings.Contains(out, "component=store") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "bundleId=com.example.app") {
		t.Fatalf("expected bundleId field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("store")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestWithRequestAttachesCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger := WithRequest(L("download"), "req-1", "com.example.app")
	logger.Info("transfer started")

	out := buf.String()
	if !strings.Contains(out, "requestId=req-1") {
		t.Fatalf("expected requestId field, got: %s", out)
	}
	if !strings.Contains(out, "bundleId=com.example.app") {
		t.Fatalf("expected bundleId field, got: %s", out)
	}
}
