package session

import "sync"

// MemoryStore is an in-memory Store for tests and throwaway sessions.
type MemoryStore struct {
	mu          sync.Mutex
	displayName string
	theme       Theme
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) LoadDisplayName() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.displayName, nil
}

func (m *MemoryStore) SaveDisplayName(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.displayName = name
	return nil
}

func (m *MemoryStore) LoadTheme() (Theme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.theme, nil
}

func (m *MemoryStore) SaveTheme(theme Theme) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.theme = theme
	return nil
}

func (m *MemoryStore) Close() error { return nil }
