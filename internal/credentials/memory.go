package credentials

import "sync"

// MemoryBackend is an in-process SecretBackend for tests and for sessions
// where nothing should outlive the process. Setting Err makes every call fail.
type MemoryBackend struct {
	mu      sync.Mutex
	secrets map[string]string
	Err     error
}

// NewMemoryBackend creates an empty MemoryBackend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{secrets: make(map[string]string)}
}

func (m *MemoryBackend) Save(id, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.secrets[id] = secret
	return nil
}

func (m *MemoryBackend) Load(id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	secret, ok := m.secrets[id]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (m *MemoryBackend) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.secrets[id]; !ok {
		return ErrNotFound
	}
	delete(m.secrets, id)
	return nil
}

// Len returns the number of stored secrets
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.secrets)
}
