package credentials

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const persistentSuffix = ".cred"

// StoredFile describes a persistent credentials file without its password
type StoredFile struct {
	Path     string
	Username string
	Domain   string
	Size     int64
	ModTime  time.Time
}

// Directory manages credentials files referenced from /etc/fstab. Those have
// to outlive the process because the boot-time mount reads them.
type Directory struct {
	path  string
	admin AdminFiles
}

// AdminFiles performs file operations with elevated privileges. The
// directory is root-owned, so a non-root caller has to go through it.
type AdminFiles interface {
	MakeDir(path string, perms os.FileMode) error
	WriteFile(path string, content []byte, perms os.FileMode) error
	ShredFile(path string) error
	ReadFile(path string) ([]byte, error)
	ListDir(path string) ([]string, error)
}

// DirectoryOption configures a Directory
type DirectoryOption func(*Directory)

// WithAdminFiles sends every read and write of the directory through the
// privileged helper a. Used when the process is not root.
func WithAdminFiles(a AdminFiles) DirectoryOption {
	return func(d *Directory) { d.admin = a }
}

// NewDirectory creates a Directory rooted at path
func NewDirectory(path string, opts ...DirectoryOption) *Directory {
	d := &Directory{path: filepath.Clean(path)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Path returns the directory location
func (d *Directory) Path() string {
	return d.path
}

// FileFor returns the deterministic file path for a server, share and credential
func (d *Directory) FileFor(server, share string, c Credential) string {
	id := c.ID
	if len(id) > 8 {
		id = id[:8]
	}
	name := fmt.Sprintf("%s_%s_%s%s", safeName(server), safeName(share), id, persistentSuffix)
	return filepath.Join(d.path, name)
}

// Write stores c for server/share and returns the file path. An existing
// file for the same credential is replaced atomically.
func (d *Directory) Write(server, share string, c Credential) (string, error) {
	content, err := c.fileContent()
	if err != nil {
		return "", err
	}
	target := d.FileFor(server, share, c)

	if d.admin != nil {
		if err := d.admin.MakeDir(d.path, 0700); err != nil {
			return "", err
		}
		if err := d.admin.WriteFile(target, content, 0600); err != nil {
			return "", fmt.Errorf("failed to install credentials file %s: %w", target, err)
		}
		return target, nil
	}

	if err := ensurePrivateDir(d.path); err != nil {
		return "", err
	}
	tmpPath := target + ".tmp-" + fmt.Sprint(time.Now().UnixNano())
	if err := writeExclusive(tmpPath, content); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = secureRemove(tmpPath)
		return "", fmt.Errorf("failed to install credentials file %s: %w", target, err)
	}
	return target, nil
}

// Remove securely deletes a credentials file. Paths outside the directory are refused.
func (d *Directory) Remove(path string) error {
	if !d.Contains(path) {
		return fmt.Errorf("refusing to remove %s: not inside %s", path, d.path)
	}
	if d.admin != nil {
		return d.admin.ShredFile(filepath.Clean(path))
	}
	return secureRemove(filepath.Clean(path))
}

// Contains reports whether path names a credentials file inside the directory
func (d *Directory) Contains(path string) bool {
	cleaned := filepath.Clean(path)
	return filepath.Dir(cleaned) == d.path && strings.HasSuffix(cleaned, persistentSuffix)
}

// List returns the credentials files in the directory, sorted by path
func (d *Directory) List() ([]StoredFile, error) {
	if d.admin != nil {
		return d.listAdmin()
	}

	entries, err := os.ReadDir(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []StoredFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials directory %s: %w", d.path, err)
	}

	var files []StoredFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), persistentSuffix) {
			continue
		}
		path := filepath.Join(d.path, entry.Name())
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		username, domain, err := readIdentity(path)
		if err != nil {
			return nil, err
		}
		files = append(files, StoredFile{
			Path:     path,
			Username: username,
			Domain:   domain,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// listAdmin lists the directory through the admin helper. Modification
// times are not available that way.
func (d *Directory) listAdmin() ([]StoredFile, error) {
	names, err := d.admin.ListDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials directory %s: %w", d.path, err)
	}

	files := []StoredFile{}
	for _, name := range names {
		if !strings.HasSuffix(name, persistentSuffix) {
			continue
		}
		path := filepath.Join(d.path, name)
		content, err := d.admin.ReadFile(path)
		if err != nil {
			return nil, err
		}
		username, domain, err := parseIdentity(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file %s: %w", path, err)
		}
		files = append(files, StoredFile{
			Path:     path,
			Username: username,
			Domain:   domain,
			Size:     int64(len(content)),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Unused returns the files not named in referenced. Symlinked references
// are resolved before comparing.
func (d *Directory) Unused(referenced []string) ([]StoredFile, error) {
	files, err := d.List()
	if err != nil {
		return nil, err
	}

	used := make(map[string]bool, len(referenced))
	for _, ref := range referenced {
		used[filepath.Clean(ref)] = true
		if resolved, err := filepath.EvalSymlinks(ref); err == nil {
			used[resolved] = true
		}
	}

	unused := []StoredFile{}
	for _, f := range files {
		if used[f.Path] {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(f.Path); err == nil && used[resolved] {
			continue
		}
		unused = append(unused, f)
	}
	return unused, nil
}

// readIdentity reads the username and domain lines of a credentials file
func readIdentity(path string) (username, domain string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to open credentials file %s: %w", path, err)
	}
	defer file.Close()

	username, domain, err = parseIdentity(file)
	if err != nil {
		return "", "", fmt.Errorf("failed to read credentials file %s: %w", path, err)
	}
	return username, domain, nil
}

func parseIdentity(r io.Reader) (username, domain string, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "username", "user":
			username = strings.TrimSpace(value)
		case "domain", "dom", "workgroup":
			domain = strings.TrimSpace(value)
		}
	}
	return username, domain, scanner.Err()
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, s)
}
