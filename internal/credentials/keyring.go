package credentials

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// KeyringBackend keeps secrets in the platform keyring (Secret Service on
// Linux, Keychain on macOS)
type KeyringBackend struct {
	service string
}

// NewKeyringBackend creates a backend storing entries under the given service name
func NewKeyringBackend(service string) *KeyringBackend {
	return &KeyringBackend{service: service}
}

func (k *KeyringBackend) Save(id, secret string) error {
	return keyring.Set(k.service, id, secret)
}

func (k *KeyringBackend) Load(id string) (string, error) {
	secret, err := keyring.Get(k.service, id)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return secret, err
}

func (k *KeyringBackend) Delete(id string) error {
	err := keyring.Delete(k.service, id)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
