// Package fileutil wraps the small set of path and file operations the
// Agent Driver's session Transcript (pkg/orchestra) needs to persist
// one WorkItem's session record, so that package isn't reaching into
// os/path-filepath directly for every read and write.
package fileutil

import (
	"os"
	"path/filepath"
)

// EnsureDir creates path (and parents) if missing.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// WriteFile writes content to path, creating parent directories first.
func WriteFile(path string, content []byte) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

// Join joins path elements.
func Join(elem ...string) string {
	return filepath.Join(elem...)
}
