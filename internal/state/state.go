// Package state resolves the on-disk state directory and provides
// whole-file JSON snapshot persistence for the other components.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultDirName is the directory created under $HOME when INKLING_HOME is unset.
const DefaultDirName = ".inkling"

// Dir returns the state directory, creating it if needed.
// INKLING_HOME overrides the default ~/.inkling location.
func Dir() (string, error) {
	dir := os.Getenv("INKLING_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, DefaultDirName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return dir, nil
}

// SaveJSON writes v to path as indented JSON using write-then-rename.
// If the rename fails (some filesystems on embedded boards don't support
// atomic replace), it logs a warning and falls back to a direct write.
func SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		slog.Warn("state.rename_unavailable", "path", path, "error", err)
		_ = os.Remove(tmp)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// LoadJSON reads path into v. A missing file returns os.ErrNotExist so
// callers can fall back to defaults; a truncated or corrupt file returns
// the decode error for the same treatment.
func LoadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
