package share

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/zoro11031/netmount/internal/common"
)

// Field names reported by ValidationError
const (
	FieldServer     = "server"
	FieldShare      = "share"
	FieldMountPoint = "mount_point"
	FieldType       = "type"
	FieldUsername   = "username"
	FieldPassword   = "password"
	FieldDomain     = "domain"
	FieldOptions    = "options"
)

// validate is the singleton validator instance
var validate = validator.New()

// ValidationError names the first field that failed validation
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate turns raw user input into MountParameters. Checks run in a fixed
// order (required fields, mount point, server and share syntax, type-specific
// fields, options) and the first failure is returned.
func Validate(raw RawFields) (MountParameters, error) {
	server := strings.TrimSpace(raw.Server)
	shareName := strings.TrimSpace(raw.Share)
	mountPoint := strings.TrimSpace(raw.MountPoint)

	// Required fields
	switch {
	case server == "":
		return MountParameters{}, invalid(FieldServer, "is required")
	case shareName == "":
		return MountParameters{}, invalid(FieldShare, "is required")
	case mountPoint == "":
		return MountParameters{}, invalid(FieldMountPoint, "is required")
	case strings.TrimSpace(raw.Type) == "":
		return MountParameters{}, invalid(FieldType, "is required")
	}

	// Mount point
	if err := common.ValidatePath(mountPoint); err != nil {
		return MountParameters{}, invalid(FieldMountPoint, "%v", err)
	}
	mountPoint = filepath.Clean(mountPoint)

	fsType, err := ParseFilesystemType(raw.Type)
	if err != nil {
		return MountParameters{}, invalid(FieldType, "%v", err)
	}

	if err := validateServer(server); err != nil {
		return MountParameters{}, err
	}

	shareName, err = normalizeShare(fsType, shareName)
	if err != nil {
		return MountParameters{}, err
	}

	// Filesystem-specific fields
	switch fsType {
	case CIFS:
		if raw.Username == "" && !hasGuestOption(raw.Options) {
			return MountParameters{}, invalid(FieldUsername, "is required for cifs unless the guest option is given")
		}
		if raw.Username != "" {
			if err := common.ValidateAccountName(raw.Username); err != nil {
				return MountParameters{}, invalid(FieldUsername, "%v", err)
			}
		}
		if err := common.ValidateSecret(raw.Password); err != nil {
			return MountParameters{}, invalid(FieldPassword, "%v", err)
		}
		if raw.Domain != "" {
			if err := common.ValidateDomain(raw.Domain); err != nil {
				return MountParameters{}, invalid(FieldDomain, "%v", err)
			}
		}
	case NFS:
		if raw.Username != "" {
			return MountParameters{}, invalid(FieldUsername, "is not supported for nfs (authentication is host based)")
		}
		if raw.Password != "" {
			return MountParameters{}, invalid(FieldPassword, "is not supported for nfs (authentication is host based)")
		}
		if raw.Domain != "" {
			return MountParameters{}, invalid(FieldDomain, "is only supported for cifs")
		}
	}

	options, err := validateOptions(raw.Options)
	if err != nil {
		return MountParameters{}, err
	}

	return MountParameters{
		server:     server,
		share:      shareName,
		mountPoint: mountPoint,
		fsType:     fsType,
		username:   raw.Username,
		password:   raw.Password,
		domain:     raw.Domain,
		options:    options,
	}, nil
}

func validateServer(server string) error {
	if strings.ContainsAny(server, `/\`) {
		return invalid(FieldServer, "must not contain path separators: %s", server)
	}
	if err := validate.Var(server, "hostname_rfc1123|ip"); err != nil {
		return invalid(FieldServer, "not a valid hostname or IP address: %s", server)
	}
	return nil
}

// normalizeShare checks the share or export name. CIFS shares are stored
// without leading slashes, NFS exports always with one.
func normalizeShare(fsType FilesystemType, name string) (string, error) {
	for _, c := range name {
		if c < 0x20 || c == 0x7f {
			return "", invalid(FieldShare, "contains control characters")
		}
	}
	if strings.Contains(name, `\`) {
		return "", invalid(FieldShare, "must use forward slashes: %s", name)
	}

	switch fsType {
	case CIFS:
		trimmed := strings.Trim(name, "/")
		if trimmed == "" {
			return "", invalid(FieldShare, "is empty after removing slashes")
		}
		if strings.Contains(trimmed, "//") {
			return "", invalid(FieldShare, "contains an empty path segment: %s", name)
		}
		return trimmed, nil
	default:
		if !strings.HasPrefix(name, "/") {
			name = "/" + name
		}
		if strings.Contains(name, ":") {
			return "", invalid(FieldShare, "export path must not contain ':': %s", name)
		}
		cleaned := filepath.Clean(name)
		if cleaned != name && cleaned+"/" != name {
			return "", invalid(FieldShare, "export path is not in canonical form: %s", name)
		}
		return cleaned, nil
	}
}

func validateOptions(tokens []string) ([]string, error) {
	seen := make(map[string]bool, len(tokens))
	options := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if err := common.ValidateOptionToken(token); err != nil {
			return nil, invalid(FieldOptions, "%v", err)
		}
		if isSecretOption(token) {
			return nil, invalid(FieldOptions, "option %q is not allowed; credentials are supplied through a credentials file", common.OptionKey(token))
		}
		if seen[token] {
			continue
		}
		seen[token] = true
		options = append(options, token)
	}
	return options, nil
}
