// Package fstab edits the static filesystem table. Lines it does not touch
// are written back byte for byte, and every rewrite replaces the file
// atomically so a crash leaves either the old or the new table.
package fstab

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/zoro11031/netmount/internal/common"
	"github.com/zoro11031/netmount/internal/system"
)

// Entry is one mount line
type Entry struct {
	Device     string   `yaml:"device" json:"device"`
	MountPoint string   `yaml:"mount_point" json:"mount_point"`
	Type       string   `yaml:"type" json:"type"`
	Options    []string `yaml:"options" json:"options"`
	Dump       int      `yaml:"dump" json:"dump"`
	Pass       int      `yaml:"pass" json:"pass"`
}

// Key identifies an entry. A table holds at most one entry per key.
type Key struct {
	Device     string
	MountPoint string
}

// Key returns the entry's identity
func (e Entry) Key() Key {
	return Key{Device: e.Device, MountPoint: filepath.Clean(e.MountPoint)}
}

// Matches reports whether the entry has the given device and mount point
func (e Entry) Matches(device, mountPoint string) bool {
	return e.Key() == Key{Device: device, MountPoint: filepath.Clean(mountPoint)}
}

// Validate checks that the entry can be written as a single well-formed line
func (e Entry) Validate() error {
	if e.Device == "" {
		return fmt.Errorf("device cannot be empty")
	}
	if strings.ContainsAny(e.Device, "\n\r\x00") {
		return fmt.Errorf("device contains invalid characters")
	}
	if err := common.ValidatePath(e.MountPoint); err != nil {
		return fmt.Errorf("invalid mount point: %w", err)
	}
	if e.Type == "" || strings.ContainsAny(e.Type, " \t\n\r#,") {
		return fmt.Errorf("invalid filesystem type %q", e.Type)
	}
	for _, opt := range e.Options {
		if opt == "" || strings.ContainsAny(opt, " \t\n\r,#") {
			return fmt.Errorf("invalid mount option %q", opt)
		}
	}
	if e.Dump < 0 || e.Pass < 0 {
		return fmt.Errorf("dump and pass must not be negative")
	}
	return nil
}

// Line renders the entry in fstab syntax, without a newline
func (e Entry) Line() string {
	opts := "defaults"
	if len(e.Options) > 0 {
		opts = strings.Join(e.Options, ",")
	}
	return strings.Join([]string{
		common.EscapeTableField(e.Device),
		common.EscapeTableField(filepath.Clean(e.MountPoint)),
		e.Type,
		opts,
		strconv.Itoa(e.Dump),
		strconv.Itoa(e.Pass),
	}, " ")
}

// Equal reports whether two entries describe the same line content
func (e Entry) Equal(o Entry) bool {
	return e.Key() == o.Key() &&
		e.Type == o.Type &&
		slices.Equal(e.Options, o.Options) &&
		e.Dump == o.Dump &&
		e.Pass == o.Pass
}

// Option returns the value of a key=value option and whether it is present
func (e Entry) Option(key string) (string, bool) {
	for _, opt := range e.Options {
		k, v, hasValue := strings.Cut(opt, "=")
		if strings.EqualFold(k, key) {
			if !hasValue {
				return "", true
			}
			return v, true
		}
	}
	return "", false
}

// CredentialsFile returns the credentials= path of a CIFS entry, if any
func (e Entry) CredentialsFile() string {
	if v, ok := e.Option("credentials"); ok {
		return v
	}
	if v, ok := e.Option("cred"); ok {
		return v
	}
	return ""
}

// IsNetworkShare reports whether the entry mounts a CIFS or NFS share
func (e Entry) IsNetworkShare() bool {
	return system.IsNetworkFilesystem(e.Type)
}

// String is the rendered line
func (e Entry) String() string {
	return e.Line()
}

// inlineSecretKeys are options that carry a password in clear text
var inlineSecretKeys = []string{"password", "pass", "password2"}

// Redacted returns a copy with inline passwords masked, for display
func (e Entry) Redacted() Entry {
	out := e
	out.Options = slices.Clone(e.Options)
	for i, opt := range out.Options {
		k, _, hasValue := strings.Cut(opt, "=")
		if hasValue && slices.Contains(inlineSecretKeys, strings.ToLower(k)) {
			out.Options[i] = k + "=****"
		}
	}
	return out
}
