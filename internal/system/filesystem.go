package system

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// FileSystem handles file system operations
type FileSystem struct {
	runner CommandRunner
}

// NewFileSystem creates a FileSystem. runner is used for operations the
// current user is not allowed to perform; it may be nil.
func NewFileSystem(runner CommandRunner) *FileSystem {
	return &FileSystem{runner: runner}
}

// EnsureDirectory creates a directory with the given permissions.
// If the directory already exists, it does nothing. When the current user
// lacks permission the directory is created through the runner.
func (f *FileSystem) EnsureDirectory(path string, perms os.FileMode) error {
	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists but is not a directory: %w", path, syscall.ENOTDIR)
		}
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check directory %s: %w", path, err)
	}

	err := os.MkdirAll(path, perms)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrPermission) || f.runner == nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	if output, err := f.runner.Run("mkdir", "-p", path); err != nil {
		return fmt.Errorf("failed to create directory %s: %w: %w\nOutput: %s", path, fs.ErrPermission, err, output)
	}
	if output, err := f.runner.Run("chmod", fmt.Sprintf("%o", perms.Perm()), path); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w\nOutput: %s", path, err, output)
	}
	return nil
}

// FileExists checks if a file exists
func (f *FileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check if file exists %s: %w", path, err)
}

// DirectoryExists checks if a directory exists
func (f *FileSystem) DirectoryExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check if directory exists %s: %w", path, err)
}

// IsMount checks if a path is a mount point by comparing its device with
// its parent's. A missing path is not a mount point.
func (f *FileSystem) IsMount(path string) (bool, error) {
	pathStat, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	parentPath := filepath.Dir(path)
	parentStat, err := os.Stat(parentPath)
	if err != nil {
		return false, fmt.Errorf("failed to stat parent %s: %w", parentPath, err)
	}

	pathStatT, ok := pathStat.Sys().(*syscall.Stat_t)
	if !ok {
		return false, fmt.Errorf("failed to get stat info for %s: not a Unix filesystem", path)
	}
	parentStatT, ok := parentStat.Sys().(*syscall.Stat_t)
	if !ok {
		return false, fmt.Errorf("failed to get stat info for %s: not a Unix filesystem", parentPath)
	}

	// If the device IDs are different, it's a mount point
	return pathStatT.Dev != parentStatT.Dev, nil
}

// ResolveRealPath cleans path and resolves symlinks in its longest existing
// prefix. The missing remainder is appended unchanged, so a mount point
// that does not exist yet still maps to where it will be created.
func ResolveRealPath(path string) (string, error) {
	cleaned := filepath.Clean(path)

	existing := cleaned
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return cleaned, nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", existing, err)
	}
	return filepath.Join(append([]string{resolved}, rest...)...), nil
}

// GetMountUnitName returns the systemd mount unit name for a mount point,
// as systemd-escape --path --suffix=mount would print it.
func GetMountUnitName(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("mount point must be an absolute path: %s", path)
	}
	cleaned := filepath.Clean(path)
	if cleaned == "/" {
		return "-.mount", nil
	}
	return escapeUnitPath(strings.TrimPrefix(cleaned, "/")) + ".mount", nil
}

// escapeUnitPath applies systemd's path escaping to a path without its
// leading slash
func escapeUnitPath(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c == '/':
			b.WriteByte('-')
		case c == '.' && i == 0:
			fmt.Fprintf(&b, `\x%02x`, c)
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == ':' || c == '_' || c == '.':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, `\x%02x`, c)
		}
	}
	return b.String()
}
