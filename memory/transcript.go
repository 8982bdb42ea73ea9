package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveTranscript writes msgs to path as an indented JSON array. The file is
// replaced atomically, so a reader never sees a partial transcript. Missing
// parent directories are created.
func SaveTranscript(path string, msgs []Message) error {
	if msgs == nil {
		msgs = []Message{}
	}
	b, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: encode transcript: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("memory: write transcript: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("memory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("memory: write transcript: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	return nil
}
