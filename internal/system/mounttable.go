package system

import (
	"fmt"
	"path/filepath"

	mount "k8s.io/mount-utils"

	"github.com/zoro11031/netmount/internal/common"
)

// networkFilesystems are the mount types reported as network shares
var networkFilesystems = map[string]bool{
	"cifs":  true,
	"smb3":  true,
	"smbfs": true,
	"nfs":   true,
	"nfs4":  true,
}

// IsNetworkFilesystem reports whether fsType is a CIFS or NFS flavour
func IsNetworkFilesystem(fsType string) bool {
	return networkFilesystems[fsType]
}

// MountEntry is one line of the kernel mount table
type MountEntry struct {
	Device  string
	Path    string
	Type    string
	Options []string
}

// MountTable reads the kernel mount table
type MountTable struct {
	mounter mount.Interface
	fs      *FileSystem
}

// NewMountTable creates a MountTable backed by /proc/mounts
func NewMountTable() *MountTable {
	return &MountTable{mounter: mount.New(""), fs: NewFileSystem(nil)}
}

// NewMountTableWithMounter creates a MountTable on top of an existing
// mount-utils implementation, typically a FakeMounter in tests.
func NewMountTableWithMounter(mounter mount.Interface) *MountTable {
	return &MountTable{mounter: mounter, fs: NewFileSystem(nil)}
}

// List returns every entry of the mount table with escapes decoded
func (t *MountTable) List() ([]MountEntry, error) {
	points, err := t.mounter.List()
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}

	entries := make([]MountEntry, 0, len(points))
	for _, mp := range points {
		entries = append(entries, MountEntry{
			Device:  common.UnescapeTableField(mp.Device),
			Path:    common.UnescapeTableField(mp.Path),
			Type:    mp.Type,
			Options: mp.Opts,
		})
	}
	return entries, nil
}

// Lookup returns the topmost mount entry at path. path should already be
// canonical (see ResolveRealPath).
func (t *MountTable) Lookup(path string) (MountEntry, bool, error) {
	entries, err := t.List()
	if err != nil {
		return MountEntry{}, false, err
	}

	target := filepath.Clean(path)
	var found MountEntry
	ok := false
	// Later entries stack on top of earlier ones
	for _, e := range entries {
		if filepath.Clean(e.Path) == target {
			found, ok = e, true
		}
	}
	return found, ok, nil
}

// IsMounted reports whether something is mounted at path. When the table
// cannot be read it falls back to comparing device ids.
func (t *MountTable) IsMounted(path string) (bool, error) {
	_, ok, err := t.Lookup(path)
	if err != nil {
		return t.fs.IsMount(path)
	}
	return ok, nil
}

// NetworkMounts returns the CIFS and NFS entries of the mount table
func (t *MountTable) NetworkMounts() ([]MountEntry, error) {
	entries, err := t.List()
	if err != nil {
		return nil, err
	}

	var shares []MountEntry
	for _, e := range entries {
		if IsNetworkFilesystem(e.Type) {
			shares = append(shares, e)
		}
	}
	return shares, nil
}
