package fstab

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/zoro11031/netmount/internal/logging"
)

// DefaultPath is the system table
const DefaultPath = "/etc/fstab"

// defaultMode applies when the table does not exist yet
const defaultMode os.FileMode = 0644

// UpsertResult says what Upsert did
type UpsertResult int

const (
	Inserted UpsertResult = iota
	Replaced
	Unchanged
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	default:
		return "unchanged"
	}
}

// RemoveResult says what Remove did
type RemoveResult int

const (
	Removed RemoveResult = iota
	NotFound
)

func (r RemoveResult) String() string {
	if r == Removed {
		return "removed"
	}
	return "not_found"
}

// Manager reads and edits one fstab file. Mutations are serialized within
// the process; edits made by other processes between our read and rename
// are lost.
type Manager struct {
	path   string
	backup bool
	log    *zap.Logger
	writer FileWriter
	mu     sync.Mutex
}

// FileWriter atomically replaces a file. It lets the table be written
// through a privileged helper when the process can't write /etc itself.
type FileWriter interface {
	WriteFile(path string, data []byte, perms os.FileMode) error
}

// Option configures a Manager
type Option func(*Manager)

// WithBackup controls whether the previous table is copied to <path>.bak
// before each rewrite
func WithBackup(enabled bool) Option {
	return func(m *Manager) { m.backup = enabled }
}

// WithLogger sets the logger parse anomalies are reported to
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithWriter installs the table and its backup through w instead of
// writing them in-process
func WithWriter(w FileWriter) Option {
	return func(m *Manager) { m.writer = w }
}

// NewManager creates a Manager for the table at path. Backups are on by default.
func NewManager(path string, opts ...Option) *Manager {
	if path == "" {
		path = DefaultPath
	}
	m := &Manager{path: path, backup: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the table location
func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) logger() *zap.Logger {
	if m.log != nil {
		return m.log
	}
	return logging.Base()
}

// load reads and parses the table. A missing file is an empty table.
func (m *Manager) load() (*table, []byte, os.FileMode, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &table{}, nil, defaultMode, nil
	}
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to read %s: %w", m.path, err)
	}

	mode := defaultMode
	if info, err := os.Stat(m.path); err == nil {
		mode = info.Mode().Perm()
	}

	t := parseTable(data)
	for _, a := range t.anomalies() {
		m.logger().Warn("fstab parse anomaly",
			zap.String("path", m.path),
			zap.Int("line", a.Line),
			zap.String("reason", a.Reason),
			zap.String("text", a.Text),
		)
	}
	return t, data, mode, nil
}

// Upsert inserts e, or replaces the entry with the same device and mount
// point in place. An identical entry leaves the file untouched.
func (m *Manager) Upsert(e Entry) (UpsertResult, error) {
	e = normalize(e)
	if err := e.Validate(); err != nil {
		return Unchanged, fmt.Errorf("invalid fstab entry: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, original, mode, err := m.load()
	if err != nil {
		return Unchanged, err
	}

	idx := t.indexes(e.Key())
	if len(idx) == 1 && t.lines[idx[0]].entry.Equal(e) {
		return Unchanged, nil
	}

	result := Inserted
	if t.replace(e) {
		result = Replaced
	} else {
		t.append(e)
	}

	if err := m.write(t.bytes(), original, mode); err != nil {
		return result, err
	}
	m.logger().Info("fstab entry saved",
		zap.String("path", m.path),
		zap.String("device", e.Device),
		zap.String("mount_point", e.MountPoint),
		zap.Stringer("result", result),
	)
	return result, nil
}

// Remove deletes the entry with the given device and mount point. When
// there is none the file is not rewritten.
func (m *Manager) Remove(device, mountPoint string) (RemoveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, original, mode, err := m.load()
	if err != nil {
		return NotFound, err
	}

	if t.remove(Key{Device: device, MountPoint: filepath.Clean(mountPoint)}) == 0 {
		return NotFound, nil
	}

	if err := m.write(t.bytes(), original, mode); err != nil {
		return Removed, err
	}
	m.logger().Info("fstab entry removed",
		zap.String("path", m.path),
		zap.String("device", device),
		zap.String("mount_point", mountPoint),
	)
	return Removed, nil
}

// List yields every entry in file order. Each iteration reads the file
// again; a read failure is yielded once as an error.
func (m *Manager) List() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		m.mu.Lock()
		t, _, _, err := m.load()
		m.mu.Unlock()

		if err != nil {
			yield(Entry{}, err)
			return
		}
		for _, e := range t.entries() {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Entries collects List into a slice
func (m *Manager) Entries() ([]Entry, error) {
	var out []Entry
	for e, err := range m.List() {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Find returns the first entry mounted at mountPoint
func (m *Manager) Find(mountPoint string) (Entry, bool, error) {
	target := filepath.Clean(mountPoint)
	for e, err := range m.List() {
		if err != nil {
			return Entry{}, false, err
		}
		if filepath.Clean(e.MountPoint) == target {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// NetworkShares returns the CIFS and NFS entries
func (m *Manager) NetworkShares() ([]Entry, error) {
	var out []Entry
	for e, err := range m.List() {
		if err != nil {
			return nil, err
		}
		if e.IsNetworkShare() {
			out = append(out, e)
		}
	}
	return out, nil
}

// ReferencedCredentialFiles returns the distinct credentials= paths of all entries
func (m *Manager) ReferencedCredentialFiles() ([]string, error) {
	var out []string
	for e, err := range m.List() {
		if err != nil {
			return nil, err
		}
		if path := e.CredentialsFile(); path != "" && !slices.Contains(out, path) {
			out = append(out, path)
		}
	}
	return out, nil
}

// Anomalies returns the lines that could not be parsed
func (m *Manager) Anomalies() ([]Anomaly, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, _, _, err := m.load()
	if err != nil {
		return nil, err
	}
	return t.anomalies(), nil
}

// normalize drops the "defaults" placeholder so parsed and built entries compare equal
func normalize(e Entry) Entry {
	if len(e.Options) == 1 && e.Options[0] == "defaults" {
		e.Options = nil
	}
	e.MountPoint = filepath.Clean(e.MountPoint)
	return e
}
