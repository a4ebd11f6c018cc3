package telemetry

import (
	"context"

	"github.com/petasbytes/buildfile-agent/internal/metrics"
)

// EmitPayloadFeatures records size features of a step payload without its text.
func EmitPayloadFeatures(ctx context.Context, kind, payload string) {
	if !ObserveEnabled() {
		return
	}
	convID, _ := ConversationIDFromContext(ctx)
	f := metrics.CountFeatures(payload)
	Emit("payload_features", map[string]any{
		"conversation_id":  convID,
		"kind":             kind,
		"features_version": "2",
		"payload": map[string]any{
			"bytes":           f.Bytes,
			"runes":           f.Runes,
			"lines":           f.Lines,
			"files":           f.Files,
			"file_errors":     f.FileErrors,
			"truncated_files": f.TruncatedFiles,
		},
	})
}
