// Package share holds the validated description of a network share mount:
// which server and share to attach, where, with which filesystem type,
// credentials and options. Every other package trusts a MountParameters value
// to be well-formed; the only way to obtain one is Validate.
package share

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/zoro11031/netmount/internal/common"
	"github.com/zoro11031/netmount/internal/credentials"
)

// FilesystemType is the kind of network filesystem to mount
type FilesystemType string

const (
	CIFS FilesystemType = "cifs"
	NFS  FilesystemType = "nfs"
)

// ParseFilesystemType maps user input to a FilesystemType. smb and smb3 are
// accepted for CIFS, nfs4 for NFS.
func ParseFilesystemType(s string) (FilesystemType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cifs", "smb", "smb3", "samba":
		return CIFS, nil
	case "nfs", "nfs4":
		return NFS, nil
	default:
		return "", fmt.Errorf("unsupported filesystem type %q (want cifs or nfs)", s)
	}
}

// guestOptions mark an anonymous CIFS mount that needs no username
var guestOptions = []string{"guest", "sec=none"}

// RawFields are the unvalidated values a user typed in
type RawFields struct {
	Server     string   `yaml:"server" json:"server"`
	Share      string   `yaml:"share" json:"share"`
	MountPoint string   `yaml:"mount_point" json:"mount_point"`
	Type       string   `yaml:"type" json:"type"`
	Username   string   `yaml:"username,omitempty" json:"username,omitempty"`
	Password   string   `yaml:"-" json:"-"`
	Domain     string   `yaml:"domain,omitempty" json:"domain,omitempty"`
	Options    []string `yaml:"options,omitempty" json:"options,omitempty"`
}

// MountParameters is an immutable, validated mount request
type MountParameters struct {
	server     string
	share      string
	mountPoint string
	fsType     FilesystemType
	username   string
	password   string
	domain     string
	options    []string
}

func (p MountParameters) Server() string       { return p.server }
func (p MountParameters) Share() string        { return p.share }
func (p MountParameters) MountPoint() string   { return p.mountPoint }
func (p MountParameters) Type() FilesystemType { return p.fsType }
func (p MountParameters) Username() string     { return p.username }
func (p MountParameters) Password() string     { return p.password }
func (p MountParameters) Domain() string       { return p.domain }

// Options returns a copy of the ordered, deduplicated option tokens
func (p MountParameters) Options() []string {
	return slices.Clone(p.options)
}

// IsGuest reports whether a CIFS mount is anonymous
func (p MountParameters) IsGuest() bool {
	return hasGuestOption(p.options)
}

// NeedsCredentials reports whether the mount authenticates with a credentials file
func (p MountParameters) NeedsCredentials() bool {
	return p.fsType == CIFS && !p.IsGuest()
}

// Device returns the fstab/mount source specifier: //server/share for CIFS,
// server:/export for NFS.
func (p MountParameters) Device() string {
	if p.fsType == CIFS {
		return "//" + p.server + "/" + p.share
	}
	host := p.server
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		host = "[" + host + "]"
	}
	return host + ":" + p.share
}

// CredentialID is the key credentials for this server, share and user are stored under
func (p MountParameters) CredentialID() string {
	return credentials.Identifier(p.server, p.share, p.username)
}

// Credential builds the credential this mount authenticates with. The
// password may be empty when it is expected to come from the store.
func (p MountParameters) Credential() credentials.Credential {
	return credentials.Credential{
		ID:       p.CredentialID(),
		Username: p.username,
		Password: p.password,
		Domain:   p.domain,
	}
}

// WithPassword returns a copy carrying the given password
func (p MountParameters) WithPassword(password string) MountParameters {
	p.options = slices.Clone(p.options)
	p.password = password
	return p
}

// Raw converts the parameters back into RawFields. Validating the result
// yields a value equal to p.
func (p MountParameters) Raw() RawFields {
	return RawFields{
		Server:     p.server,
		Share:      p.share,
		MountPoint: p.mountPoint,
		Type:       string(p.fsType),
		Username:   p.username,
		Password:   p.password,
		Domain:     p.domain,
		Options:    slices.Clone(p.options),
	}
}

// Equal reports whether two parameter sets describe the same mount
func (p MountParameters) Equal(o MountParameters) bool {
	return p.server == o.server &&
		p.share == o.share &&
		p.mountPoint == o.mountPoint &&
		p.fsType == o.fsType &&
		p.username == o.username &&
		p.password == o.password &&
		p.domain == o.domain &&
		slices.Equal(p.options, o.options)
}

// String describes the mount without any secret
func (p MountParameters) String() string {
	return fmt.Sprintf("%s on %s type %s", p.Device(), p.mountPoint, p.fsType)
}

func hasGuestOption(options []string) bool {
	for _, opt := range options {
		lower := strings.ToLower(opt)
		if slices.Contains(guestOptions, lower) {
			return true
		}
	}
	return false
}

// secretOptionKeys may never be passed as options: they would put a secret
// into the process table or into /etc/fstab.
var secretOptionKeys = []string{"password", "pass", "password2", "credentials", "cred"}

func isSecretOption(token string) bool {
	return slices.Contains(secretOptionKeys, common.OptionKey(token))
}
