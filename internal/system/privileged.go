package system

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PrivilegedFiles writes, reads and removes files the current user may not
// touch, such as /etc/fstab and the persistent credentials directory. Every
// operation goes through runner, which is expected to escalate.
type PrivilegedFiles struct {
	runner  CommandRunner
	tempDir string
}

// NewPrivilegedFiles creates a PrivilegedFiles using runner
func NewPrivilegedFiles(runner CommandRunner) *PrivilegedFiles {
	return &PrivilegedFiles{runner: runner}
}

// MakeDir creates path with perms, tightening the mode of an existing directory
func (p *PrivilegedFiles) MakeDir(path string, perms os.FileMode) error {
	if output, err := p.runner.Run("install", "-d", "-m", fmt.Sprintf("%04o", perms.Perm()), path); err != nil {
		return fmt.Errorf("failed to create directory %s: %w\nOutput: %s", path, err, output)
	}
	return nil
}

// WriteFile atomically replaces path with content. The content is staged in
// a private temporary file, installed next to path with the final mode and
// then renamed over path, so readers see either the old or the new file.
func (p *PrivilegedFiles) WriteFile(path string, content []byte, perms os.FileMode) error {
	tmp, err := os.CreateTemp(p.tempDir, "netmount-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer wipe(tmpPath, len(content))

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	staged := StagedPath(path)
	if output, err := p.runner.Run("install", "-m", fmt.Sprintf("%04o", perms.Perm()), tmpPath, staged); err != nil {
		return fmt.Errorf("failed to stage %s: %w\nOutput: %s", path, err, output)
	}
	if output, err := p.runner.Run("mv", "-f", staged, path); err != nil {
		_, _ = p.runner.Run("rm", "-f", staged)
		return fmt.Errorf("failed to replace %s: %w\nOutput: %s", path, err, output)
	}
	return nil
}

// ShredFile overwrites path and unlinks it. A missing file is not an error.
func (p *PrivilegedFiles) ShredFile(path string) error {
	if _, err := p.runner.Run("shred", "-u", "-z", path); err == nil {
		return nil
	}
	if output, err := p.runner.Run("rm", "-f", path); err != nil {
		return fmt.Errorf("failed to remove %s: %w\nOutput: %s", path, err, output)
	}
	return nil
}

// ReadFile returns the content of path
func (p *PrivilegedFiles) ReadFile(path string) ([]byte, error) {
	output, err := p.runner.Run("cat", path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w\nOutput: %s", path, err, output)
	}
	return []byte(output), nil
}

// ListDir returns the names in directory path. A missing directory is empty.
func (p *PrivilegedFiles) ListDir(path string) ([]string, error) {
	if output, err := p.runner.Run("test", "-d", path); err != nil {
		if ExitCode(err) == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check %s: %w\nOutput: %s", path, err, output)
	}
	output, err := p.runner.Run("ls", "-1A", path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w\nOutput: %s", path, err, output)
	}
	var names []string
	for _, name := range strings.Split(output, "\n") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// StagedPath returns a unique hidden name next to path, so the final rename
// never crosses filesystems
func StagedPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp-"+uuid.NewString()[:8])
}

// wipe zero-fills and removes a temp file that may hold a secret
func wipe(path string, size int) {
	if f, err := os.OpenFile(path, os.O_WRONLY, 0); err == nil {
		_, _ = f.Write(make([]byte, size))
		f.Close()
	}
	os.Remove(path)
}
