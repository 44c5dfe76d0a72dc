package credentials

import (
	"errors"
	"sync"
)

// Janitor tracks credentials files that are live while a mount runs, so an
// interrupted process can still remove them from a signal handler.
type Janitor struct {
	mu    sync.Mutex
	files map[*File]struct{}
}

// NewJanitor creates an empty Janitor
func NewJanitor() *Janitor {
	return &Janitor{files: make(map[*File]struct{})}
}

// Track registers f until the returned function is called
func (j *Janitor) Track(f *File) (untrack func()) {
	j.mu.Lock()
	j.files[f] = struct{}{}
	j.mu.Unlock()

	return func() {
		j.mu.Lock()
		delete(j.files, f)
		j.mu.Unlock()
	}
}

// Live returns the number of tracked files
func (j *Janitor) Live() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.files)
}

// ReleaseAll releases every tracked file
func (j *Janitor) ReleaseAll() error {
	j.mu.Lock()
	files := make([]*File, 0, len(j.files))
	for f := range j.files {
		files = append(files, f)
	}
	j.files = make(map[*File]struct{})
	j.mu.Unlock()

	var errs []error
	for _, f := range files {
		if err := f.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
