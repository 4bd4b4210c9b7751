package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-memory implementation of BlobStore.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates a new in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}

	return slices.Clone(value), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[key] = slices.Clone(value)

	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Compile-time check.
var _ BlobStore = (*MemoryStore)(nil)
