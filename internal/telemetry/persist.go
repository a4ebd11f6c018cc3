package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// PersistPayload writes a raw model or tool payload under
// <artifacts>/payloads/<conversation>/ when AGT_PERSIST_API_PAYLOADS=1.
// It returns the written path, or "" when persistence is off or failed.
func PersistPayload(ctx context.Context, step int, kind string, payload []byte) string {
	if !PersistPayloadsEnabled() {
		return ""
	}
	convID, ok := ConversationIDFromContext(ctx)
	if !ok {
		convID = "unknown"
	}
	dir := filepath.Join(ArtifactsDir(), "payloads", unsafeName.ReplaceAllString(convID, "_"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: mkdir %s: %v\n", dir, err)
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("%03d-%s.json", step, unsafeName.ReplaceAllString(kind, "_")))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: write %s: %v\n", path, err)
		return ""
	}
	return path
}
