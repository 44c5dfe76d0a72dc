package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// File is a transient credentials file owned by one mount attempt. Callers
// must Release it on every exit path.
type File struct {
	path     string
	mu       sync.Mutex
	released bool
}

// Materialize writes c to a new 0600 file in dir. The directory is created
// with mode 0700 if missing.
func Materialize(dir string, c Credential) (*File, error) {
	content, err := c.fileContent()
	if err != nil {
		return nil, err
	}
	if err := ensurePrivateDir(dir); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, "cred-"+uuid.NewString())
	if err := writeExclusive(path, content); err != nil {
		return nil, err
	}
	return &File{path: path}, nil
}

// Path returns the location of the credentials file
func (f *File) Path() string {
	return f.path
}

// Release overwrites and unlinks the file. It is safe to call more than once.
func (f *File) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil
	}
	if err := secureRemove(f.path); err != nil {
		return err
	}
	f.released = true
	return nil
}

// writeExclusive creates path with O_EXCL|O_NOFOLLOW so an attacker-planted
// symlink or file is never written through.
func writeExclusive(path string, content []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create credentials file: %w", err)
	}

	// umask may only narrow the mode, but be explicit
	if err := file.Chmod(0600); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to set permissions on credentials file: %w", err)
	}
	if _, err := file.Write(content); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to sync credentials file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close credentials file: %w", err)
	}
	return nil
}

// secureRemove zero-fills a file before unlinking it. A missing file is not an error.
func secureRemove(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat credentials file %s: %w", path, err)
	}

	if info.Mode().IsRegular() && info.Size() > 0 {
		if file, err := os.OpenFile(path, os.O_WRONLY|unix.O_NOFOLLOW, 0); err == nil {
			_, _ = file.Write(make([]byte, info.Size()))
			_ = file.Sync()
			file.Close()
		}
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials file %s: %w", path, err)
	}
	return nil
}

// ensurePrivateDir creates dir with mode 0700 and tightens an existing one
func ensurePrivateDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to check credentials directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists but is not a directory", dir)
	}
	if info.Mode().Perm()&0077 != 0 {
		if err := os.Chmod(dir, 0700); err != nil {
			return fmt.Errorf("failed to restrict permissions on %s: %w", dir, err)
		}
	}
	return nil
}
