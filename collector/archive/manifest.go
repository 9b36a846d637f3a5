package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const manifestSuffix = "_configuration.json"

// ManifestPath returns the conventional manifest path for name in dir.
func ManifestPath(dir, name string) string {
	return filepath.Join(dir, name+manifestSuffix)
}

// WriteManifest stores v as indented JSON next to the shards of name. An
// existing manifest is never overwritten; a numeric suffix is added instead.
// The file appears atomically.
func WriteManifest(dir, name string, v any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	path, err := freePath(ManifestPath(dir, name))
	if err != nil {
		return "", err
	}
	tmp := path + partialExt
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	return path, nil
}
