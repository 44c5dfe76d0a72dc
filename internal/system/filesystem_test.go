package system

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestResolveRealPath(t *testing.T) {
	// Create a temp directory for testing
	tmpDir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}

	// Create a directory and a symlink to it
	realDir := filepath.Join(tmpDir, "real")
	symlinkDir := filepath.Join(tmpDir, "link")

	if err := os.Mkdir(realDir, 0755); err != nil {
		t.Fatalf("Failed to create test directory: %v", err)
	}

	if err := os.Symlink(realDir, symlinkDir); err != nil {
		t.Fatalf("Failed to create test symlink: %v", err)
	}

	tests := []struct {
		name     string
		path     string
		expected string
		wantErr  bool
	}{
		{
			name:     "resolve symlink to real directory",
			path:     symlinkDir,
			expected: realDir,
		},
		{
			name:     "path without symlink returns same path",
			path:     realDir,
			expected: realDir,
		},
		{
			name:     "non-existent path under symlink",
			path:     filepath.Join(symlinkDir, "subdir"),
			expected: filepath.Join(realDir, "subdir"),
		},
		{
			name:     "non-existent nested path under symlink",
			path:     filepath.Join(symlinkDir, "a", "b"),
			expected: filepath.Join(realDir, "a", "b"),
		},
		{
			name:     "trailing slash and dot segments are cleaned",
			path:     symlinkDir + "/./subdir/",
			expected: filepath.Join(realDir, "subdir"),
		},
		{
			name:     "empty path returns cleaned path",
			path:     "",
			expected: ".",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveRealPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ResolveRealPath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("ResolveRealPath() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestResolveRealPathCoreOSSimulation simulates the /mnt -> /var/mnt layout
// of image-based distributions
func TestResolveRealPathCoreOSSimulation(t *testing.T) {
	tmpDir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}

	varMntDir := filepath.Join(tmpDir, "var", "mnt")
	mntSymlink := filepath.Join(tmpDir, "mnt")

	if err := os.MkdirAll(varMntDir, 0755); err != nil {
		t.Fatalf("Failed to create var/mnt: %v", err)
	}
	if err := os.Symlink(varMntDir, mntSymlink); err != nil {
		t.Fatalf("Failed to create mnt symlink: %v", err)
	}

	realPath, err := ResolveRealPath(filepath.Join(mntSymlink, "nas-media"))
	if err != nil {
		t.Fatalf("ResolveRealPath() error = %v", err)
	}

	expected := filepath.Join(varMntDir, "nas-media")
	if realPath != expected {
		t.Errorf("ResolveRealPath() = %v, want %v", realPath, expected)
	}
}

func TestGetMountUnitName(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
		wantErr  bool
	}{
		{"simple mount point", "/mnt/nas", "mnt-nas.mount", false},
		{"mount point with dash", "/mnt/nas-media", `mnt-nas\x2dmedia.mount`, false},
		{"root mount point", "/", "-.mount", false},
		{"var mount point", "/var/mnt/nas", "var-mnt-nas.mount", false},
		{"trailing slash", "/srv/share/", "srv-share.mount", false},
		{"space", "/mnt/my share", `mnt-my\x20share.mount`, false},
		{"leading dot", "/.hidden", `\x2ehidden.mount`, false},
		{"relative path", "mnt/nas", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetMountUnitName(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetMountUnitName() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("GetMountUnitName() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEnsureDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	runner := NewMockCommandRunner()
	fs := NewFileSystem(runner)

	target := filepath.Join(tmpDir, "a", "b")
	if err := fs.EnsureDirectory(target, 0755); err != nil {
		t.Fatalf("EnsureDirectory() error = %v", err)
	}
	exists, err := fs.DirectoryExists(target)
	if err != nil || !exists {
		t.Fatalf("DirectoryExists() = %v, %v; want true", exists, err)
	}

	// Existing directory is a no-op
	if err := fs.EnsureDirectory(target, 0755); err != nil {
		t.Fatalf("EnsureDirectory() on existing dir error = %v", err)
	}
	if runner.Count() != 0 {
		t.Errorf("expected no privileged commands, got %v", runner.Commands)
	}
}

func TestEnsureDirectoryRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	err := NewFileSystem(nil).EnsureDirectory(file, 0755)
	if !errors.Is(err, syscall.ENOTDIR) {
		t.Errorf("EnsureDirectory() error = %v, want ENOTDIR", err)
	}
}

func TestFileExists(t *testing.T) {
	fs := NewFileSystem(nil)
	file := filepath.Join(t.TempDir(), "present")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	exists, err := fs.FileExists(file)
	if err != nil || !exists {
		t.Errorf("FileExists(%s) = %v, %v; want true", file, exists, err)
	}

	exists, err = fs.FileExists("/this/path/does/not/exist/xyz")
	if err != nil || exists {
		t.Errorf("FileExists(non-existent) = %v, %v; want false", exists, err)
	}
}

func TestIsMount(t *testing.T) {
	fs := NewFileSystem(nil)

	mounted, err := fs.IsMount("/")
	if err != nil {
		t.Fatalf("IsMount(/) error = %v", err)
	}
	// "/" is its own parent, so device ids match
	if mounted {
		t.Error("IsMount(/) = true, want false")
	}

	mounted, err = fs.IsMount(filepath.Join(t.TempDir(), "missing"))
	if err != nil || mounted {
		t.Errorf("IsMount(missing) = %v, %v; want false", mounted, err)
	}
}
