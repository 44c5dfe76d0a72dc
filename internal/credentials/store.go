package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no secret is stored under an identifier
var ErrNotFound = errors.New("credential not found")

// SecretBackend is a keyed secret vault. Load returns ErrNotFound for unknown ids.
type SecretBackend interface {
	Save(id, secret string) error
	Load(id string) (string, error)
	Delete(id string) error
}

// BackendError reports that the secret backend could not be reached or
// refused an operation. The store never falls back to plaintext storage.
type BackendError struct {
	Op  string
	ID  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("secret backend %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// storedSecret is the document kept in the backend for one credential
type storedSecret struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Domain   string `json:"domain,omitempty"`
}

// Store saves and loads credentials through a SecretBackend
type Store struct {
	backend SecretBackend
}

// NewStore creates a Store on top of backend
func NewStore(backend SecretBackend) *Store {
	return &Store{backend: backend}
}

// Save stores c under c.ID, replacing any previous value
func (s *Store) Save(c Credential) error {
	if c.ID == "" {
		return fmt.Errorf("credential identifier cannot be empty")
	}
	if c.Username == "" {
		return fmt.Errorf("credential username cannot be empty")
	}

	data, err := json.Marshal(storedSecret{Username: c.Username, Password: c.Password, Domain: c.Domain})
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	if err := s.backend.Save(c.ID, string(data)); err != nil {
		return &BackendError{Op: "save", ID: c.ID, Err: err}
	}
	return nil
}

// Load returns the credential stored under id, or ErrNotFound
func (s *Store) Load(id string) (Credential, error) {
	secret, err := s.backend.Load(id)
	if errors.Is(err, ErrNotFound) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, &BackendError{Op: "load", ID: id, Err: err}
	}

	var stored storedSecret
	if err := json.Unmarshal([]byte(secret), &stored); err != nil {
		return Credential{}, fmt.Errorf("failed to decode stored credential %s: %w", id, err)
	}
	return Credential{ID: id, Username: stored.Username, Password: stored.Password, Domain: stored.Domain}, nil
}

// Delete removes the credential stored under id. Deleting an unknown id is not an error.
func (s *Store) Delete(id string) error {
	err := s.backend.Delete(id)
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}
	return &BackendError{Op: "delete", ID: id, Err: err}
}
