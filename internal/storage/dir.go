package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

// FallbackDir is the per-user directory under root used when the requested
// output directory cannot be written.
func FallbackDir(root string) string {
	if root == "" {
		root = os.TempDir()
	}
	return filepath.Join(root, fmt.Sprintf("chrome_screenshots_%d", os.Getuid()))
}

// EnsureWritableDir creates dir if needed and verifies a file can be created
// in it. If dir is unusable it falls back to FallbackDir(fallbackRoot).
func EnsureWritableDir(dir string, fallbackRoot string) (string, error) {
	if dir == "" {
		dir = "."
	}

	err := writable(dir)
	if err == nil {
		return dir, nil
	}
	slog.Warn("output directory is not writable, falling back", "directory", dir, "error", err)

	fallback := FallbackDir(fallbackRoot)
	if fallbackErr := writable(fallback); fallbackErr != nil {
		return "", xerrors.Errorf("no writable output directory: %s: %v; fallback %s: %w", dir, err, fallback, fallbackErr)
	}
	return fallback, nil
}

func writable(dir string) error {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return xerrors.Errorf("failed to create directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return xerrors.Errorf("failed to create file: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}

// UniqueName returns prefix_<16 hex chars>ext.
func UniqueName(prefix string, ext string) (string, error) {
	unique := make([]byte, 8)
	if _, err := rand.Read(unique); err != nil {
		return "", xerrors.Errorf("failed to generate unique identifier: %w", err)
	}
	return fmt.Sprintf("%s_%s%s", prefix, hex.EncodeToString(unique), ext), nil
}
