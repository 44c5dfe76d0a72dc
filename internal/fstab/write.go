package fstab

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// write replaces the table with data. The original is untouched unless the
// final rename succeeds.
func (m *Manager) write(data, original []byte, mode os.FileMode) error {
	target := m.path
	// Keep a symlinked table a symlink
	if resolved, err := filepath.EvalSymlinks(m.path); err == nil {
		target = resolved
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to resolve %s: %w", m.path, err)
	}

	replace := replaceFile
	if m.writer != nil {
		replace = m.writer.WriteFile
	}

	if m.backup && original != nil {
		if err := replace(target+".bak", original, mode); err != nil {
			return fmt.Errorf("failed to back up fstab: %w", err)
		}
	}
	return replace(target, data, mode)
}

// replaceFile writes data to a temporary file in the target's directory,
// syncs it and renames it over target, then syncs the directory
func replaceFile(target string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return fmt.Errorf("failed to set permissions on %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", target, err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
