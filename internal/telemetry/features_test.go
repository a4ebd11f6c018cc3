package telemetry_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/petasbytes/buildfile-agent/internal/metrics"
	"github.com/petasbytes/buildfile-agent/internal/telemetry"
)

func TestEmitPayloadFeatures_HappyPath(t *testing.T) {
	path := observeInto(t)

	ctx := telemetry.WithConversationID(context.Background(), "conv-xyz")
	payload := `[{"path":"Dockerfile","content":"FROM golang:1.22"},{"path":"missing.go","error":"HTTPError 404: Not Found"}]`
	want := metrics.CountFeatures(payload)

	telemetry.EmitPayloadFeatures(ctx, "ToolResponded", payload)

	lines := readLines(t, path)
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if m["event"] != "payload_features" || m["conversation_id"] != "conv-xyz" || m["kind"] != "ToolResponded" {
		t.Fatalf("unexpected event: %#v", m)
	}
	p, ok := m["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload field missing or wrong type: %T", m["payload"])
	}
	if p["bytes"] != float64(want.Bytes) || p["runes"] != float64(want.Runes) || p["lines"] != float64(want.Lines) ||
		p["files"] != float64(2) || p["file_errors"] != float64(1) || p["truncated_files"] != float64(0) {
		t.Fatalf("features mismatch: got %#v, want %#v", p, want)
	}

	b, _ := os.ReadFile(path)
	if strings.Contains(string(b), "golang:1.22") {
		t.Fatalf("raw payload text leaked into events.jsonl")
	}
}

func TestEmitPayloadFeatures_ObserveOff_NoEvent(t *testing.T) {
	base := t.TempDir()
	t.Setenv("AGT_ARTIFACTS_DIR", base)
	t.Setenv("AGT_OBSERVE_JSON", "0")

	telemetry.EmitPayloadFeatures(context.Background(), "tool_result", "some text")

	if _, err := os.Stat(filepath.Join(base, "events.jsonl")); !os.IsNotExist(err) {
		t.Fatalf("expected no events.jsonl when observe=0, got err=%v", err)
	}
}

func TestPersistPayload(t *testing.T) {
	base := t.TempDir()
	t.Setenv("AGT_ARTIFACTS_DIR", base)
	t.Setenv("AGT_PERSIST_API_PAYLOADS", "1")

	ctx := telemetry.WithConversationID(context.Background(), "conv/1")
	path := telemetry.PersistPayload(ctx, 2, "model request", []byte(`{"a":1}`))

	want := filepath.Join(base, "payloads", "conv_1", "002-model_request.json")
	if path != want {
		t.Fatalf("path: got %q want %q", path, want)
	}
	b, err := os.ReadFile(path)
	if err != nil || string(b) != `{"a":1}` {
		t.Fatalf("content: %q err=%v", b, err)
	}
}

func TestPersistPayload_Off(t *testing.T) {
	base := t.TempDir()
	t.Setenv("AGT_ARTIFACTS_DIR", base)
	t.Setenv("AGT_PERSIST_API_PAYLOADS", "0")

	if p := telemetry.PersistPayload(context.Background(), 1, "x", []byte("y")); p != "" {
		t.Fatalf("expected no write, got %q", p)
	}
}
