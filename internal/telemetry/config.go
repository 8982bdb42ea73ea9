package telemetry

import (
	"os"
	"sync"
)

// DefaultArtifactsDir holds events.jsonl unless overridden.
const DefaultArtifactsDir = ".ctxassist"

var (
	mu             sync.RWMutex
	observeEnabled bool
	artifactsDir   string
)

func init() {
	// Read once at process start. Configure may override later.
	observeEnabled = os.Getenv("CTXA_OBSERVE_JSON") == "1"
	artifactsDir = os.Getenv("CTXA_ARTIFACTS_DIR")
}

// Configure sets emission and output location from loaded configuration.
// An empty dir keeps the current one.
func Configure(observe bool, dir string) {
	mu.Lock()
	defer mu.Unlock()
	observeEnabled = observe
	if dir != "" {
		artifactsDir = dir
	}
}

// ObserveEnabled reports whether JSONL emission is on.
func ObserveEnabled() bool {
	// Honour explicit env values at call time so tests can flip it mid-run.
	if v, ok := os.LookupEnv("CTXA_OBSERVE_JSON"); ok && v != "" {
		return v == "1"
	}
	mu.RLock()
	defer mu.RUnlock()
	return observeEnabled
}

// ArtifactsDir returns the directory events.jsonl is written to.
func ArtifactsDir() string {
	if v := os.Getenv("CTXA_ARTIFACTS_DIR"); v != "" {
		return v
	}
	mu.RLock()
	defer mu.RUnlock()
	if artifactsDir != "" {
		return artifactsDir
	}
	return DefaultArtifactsDir
}
