package system

import (
	"os"
	"sync"
)

// MockFileSystem is a mock FileSystemManager for testing purposes.
// It records requested directories instead of creating them.
type MockFileSystem struct {
	mu          sync.Mutex
	Directories map[string]os.FileMode
	// Err, when set, is returned by every EnsureDirectory call
	Err error
}

// NewMockFileSystem creates a new MockFileSystem.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		Directories: make(map[string]os.FileMode),
	}
}

// EnsureDirectory records the directory that would be created.
func (m *MockFileSystem) EnsureDirectory(path string, perms os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Directories[path] = perms
	return nil
}
