package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store, used for ephemeral vaults and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Read(ctx context.Context, name string) ([]byte, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[clean]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Write(ctx context.Context, name string, data []byte) error {
	clean, err := CleanName(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[clean] = append([]byte(nil), data...)
	return nil
}

// Delete removes name if present. Invalid names are ignored.
func (m *MemoryStore) Delete(name string) {
	clean, err := CleanName(name)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, clean)
}
