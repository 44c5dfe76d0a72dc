package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Markers manages small marker files in one directory. netmount uses them
// to remember fstab registrations that failed after a successful mount.
type Markers struct {
	dir string
}

// NewMarkers creates a Markers instance rooted at dir, or
// ~/.local/netmount/pending when empty
func NewMarkers(dir string) *Markers {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "/root"
		}
		dir = filepath.Join(home, ".local", "netmount", "pending")
	}

	return &Markers{
		dir: dir,
	}
}

// MarkerName turns an arbitrary key such as a mount point into a marker
// name. The mapping is reversible with KeyForMarker.
func MarkerName(key string) string {
	return url.QueryEscape(key)
}

// KeyForMarker reverses MarkerName
func KeyForMarker(name string) (string, error) {
	key, err := url.QueryUnescape(name)
	if err != nil {
		return "", fmt.Errorf("invalid marker name %q: %w", name, err)
	}
	return key, nil
}

// validateMarkerName ensures the marker name can't escape the directory
func validateMarkerName(name string) error {
	if name == "" {
		return fmt.Errorf("marker name cannot be empty")
	}
	if strings.Contains(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("marker name cannot contain path separators: %s", name)
	}
	if name == ".." || name == "." {
		return fmt.Errorf("marker name cannot be '.' or '..': %s", name)
	}
	return nil
}

// Create writes a marker with the given content, replacing an existing one
func (m *Markers) Create(name string, content []byte) error {
	if err := validateMarkerName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}

	markerPath := filepath.Join(m.dir, name)
	tmpPath := markerPath + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write marker file: %w", err)
	}
	if err := os.Rename(tmpPath, markerPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to create marker file: %w", err)
	}
	return nil
}

// Read returns a marker's content
func (m *Markers) Read(name string) ([]byte, error) {
	if err := validateMarkerName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(m.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read marker %s: %w", name, err)
	}
	return data, nil
}

// Exists checks if a marker file exists.
// If error is not nil, the exists value should not be trusted.
func (m *Markers) Exists(name string) (bool, error) {
	if err := validateMarkerName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(m.dir, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check marker existence: %w", err)
}

// Remove deletes a marker file. A missing marker is not an error.
func (m *Markers) Remove(name string) error {
	if err := validateMarkerName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(m.dir, name))
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return fmt.Errorf("failed to remove marker %s: %w", name, err)
}

// RemoveAll removes the marker directory
func (m *Markers) RemoveAll() error {
	if _, err := os.Stat(m.dir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(m.dir)
}

// List returns all marker names, sorted
func (m *Markers) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read marker directory: %w", err)
	}

	markers := []string{}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		markers = append(markers, entry.Name())
	}
	sort.Strings(markers)
	return markers, nil
}

// Dir returns the marker directory path
func (m *Markers) Dir() string {
	return m.dir
}
