// Package credentials keeps share passwords out of process listings and
// world-readable files. Secrets live in a SecretBackend (normally the desktop
// keyring); a mount gets them through a short-lived 0600 credentials file, and
// boot-time fstab mounts through a persistent one in a root-only directory.
package credentials

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Credential is one set of share credentials
type Credential struct {
	ID       string
	Username string
	Password string
	Domain   string
}

// Identifier derives the stable store key for a server, share and user
func Identifier(server, share, username string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(server) + "\x00" + share + "\x00" + username))
	return hex.EncodeToString(sum[:])[:32]
}

// String never includes the password
func (c Credential) String() string {
	return fmt.Sprintf("Credential{ID: %s, Username: %s, Domain: %s, Password: [redacted]}", c.ID, c.Username, c.Domain)
}

// GoString keeps %#v from printing the password
func (c Credential) GoString() string {
	return c.String()
}

// fileContent renders the key=value block mount.cifs reads from a credentials file
func (c Credential) fileContent() ([]byte, error) {
	for name, v := range map[string]string{"username": c.Username, "password": c.Password, "domain": c.Domain} {
		if strings.ContainsAny(v, "\n\r\x00") {
			return nil, fmt.Errorf("credential %s contains a line break", name)
		}
	}

	var b strings.Builder
	b.WriteString("username=" + c.Username + "\n")
	b.WriteString("password=" + c.Password + "\n")
	if c.Domain != "" {
		b.WriteString("domain=" + c.Domain + "\n")
	}
	return []byte(b.String()), nil
}
