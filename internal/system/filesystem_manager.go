package system

import "os"

// FileSystemManager defines the file system operations the mount executor
// needs. This allows for mocking the file system in tests.
type FileSystemManager interface {
	EnsureDirectory(path string, perms os.FileMode) error
}
