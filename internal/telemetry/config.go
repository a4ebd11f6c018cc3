package telemetry

import (
	"os"
)

var (
	observeEnabled         bool
	persistPayloadsEnabled bool
)

func init() {
	// Read once at process start. Mid-run environment changes have no effect.
	observeEnabled = os.Getenv("AGT_OBSERVE_JSON") == "1"
	persistPayloadsEnabled = os.Getenv("AGT_PERSIST_API_PAYLOADS") == "1"
}

// ObserveEnabled reports whether JSONL emission was enabled at startup.
func ObserveEnabled() bool {
	// Preserve startup-evaluated default, but allow tests to enable mid-run via env override.
	if os.Getenv("AGT_OBSERVE_JSON") == "1" {
		return true
	}
	return observeEnabled
}

// PersistPayloadsEnabled reports whether model and tool payload persistence was enabled at startup.
func PersistPayloadsEnabled() bool {
	if os.Getenv("AGT_PERSIST_API_PAYLOADS") == "1" {
		return true
	}
	return persistPayloadsEnabled
}

// ArtifactsDir is where events and payloads are written (AGT_ARTIFACTS_DIR, default .agent).
func ArtifactsDir() string {
	if d := os.Getenv("AGT_ARTIFACTS_DIR"); d != "" {
		return d
	}
	return ".agent"
}
