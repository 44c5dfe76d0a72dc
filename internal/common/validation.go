package common

import (
	"fmt"
	"path/filepath"
	"strings"
)

// shellMetacharacters are refused in mount option tokens. Tokens end up in an
// argv and in /etc/fstab, where several of these change meaning.
const shellMetacharacters = ";|&$`<>()\\\"'*?!{}[]#~"

// ValidatePath validates that a path is absolute and printable
func ValidatePath(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %s", path)
	}
	for _, c := range path {
		if c < 0x20 || c == 0x7f {
			return fmt.Errorf("path contains control characters: %q", path)
		}
	}
	return nil
}

// ValidateNotEmpty validates that a string is not empty
func ValidateNotEmpty(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("value cannot be empty")
	}
	return nil
}

// ValidateDomain validates a domain name (basic validation)
// Windows workgroup names such as WORKGROUP pass as single-label domains.
func ValidateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("domain cannot be empty")
	}

	if len(domain) > 253 {
		return fmt.Errorf("domain name too long: %s", domain)
	}

	parts := strings.Split(domain, ".")
	for _, part := range parts {
		if part == "" {
			return fmt.Errorf("invalid domain (empty label): %s", domain)
		}
		if len(part) > 63 {
			return fmt.Errorf("domain label too long: %s", part)
		}

		for i, c := range part {
			if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_') {
				return fmt.Errorf("invalid character in domain: %s", domain)
			}
			// Hyphen cannot be at start or end
			if c == '-' && (i == 0 || i == len(part)-1) {
				return fmt.Errorf("domain label cannot start or end with hyphen: %s", part)
			}
		}
	}

	return nil
}

// ValidateAccountName validates a share account name. It is written as a
// username= line in a credentials file, so separators and control characters
// are refused.
func ValidateAccountName(name string) error {
	if name == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if len(name) > 256 {
		return fmt.Errorf("username too long (max 256 characters)")
	}
	for _, c := range name {
		if c < 0x20 || c == 0x7f {
			return fmt.Errorf("username contains control characters")
		}
		if c == ',' || c == '=' || c == ' ' || c == '/' || c == '\\' {
			return fmt.Errorf("username contains invalid character %q", c)
		}
	}
	return nil
}

// ValidateSecret validates a password for use in a credentials file
func ValidateSecret(secret string) error {
	if strings.ContainsAny(secret, "\n\r\x00") {
		return fmt.Errorf("password cannot contain line breaks or NUL bytes")
	}
	return nil
}

// ValidateOptionToken validates a single mount option of the form key or key=value
func ValidateOptionToken(token string) error {
	if token == "" {
		return fmt.Errorf("option cannot be empty")
	}
	if strings.IndexFunc(token, func(r rune) bool { return r <= ' ' || r == 0x7f }) >= 0 {
		return fmt.Errorf("option %q contains whitespace or control characters", token)
	}
	if strings.ContainsAny(token, shellMetacharacters) {
		return fmt.Errorf("option %q contains shell metacharacters", token)
	}
	if strings.Contains(token, ",") {
		return fmt.Errorf("option %q contains a comma; pass options separately", token)
	}

	key, _, _ := strings.Cut(token, "=")
	if key == "" {
		return fmt.Errorf("option %q has an empty key", token)
	}
	for _, c := range key {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-' || c == '.') {
			return fmt.Errorf("option key %q contains invalid character %q", key, c)
		}
	}
	return nil
}

// OptionKey returns the key part of a key or key=value option token
func OptionKey(token string) string {
	key, _, _ := strings.Cut(token, "=")
	return strings.ToLower(key)
}
