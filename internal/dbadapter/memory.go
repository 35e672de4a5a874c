package dbadapter

import (
	"context"
	"sync"
)

// MemoryBackend is an in-memory Backend used by tests and by any narrow
// in-process deployment that does not need durability.
type MemoryBackend struct {
	mu   sync.Mutex
	docs map[string][]byte
}

// NewMemoryBackend builds an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

func key(collection, id string) string { return collection + "\x00" + id }

func (m *MemoryBackend) SaveBlob(_ context.Context, collection, id string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	m.docs[key(collection, id)] = cp
	return nil
}

func (m *MemoryBackend) LoadBlob(_ context.Context, collection, id string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.docs[key(collection, id)]
	return blob, ok, nil
}

func (m *MemoryBackend) Close(context.Context) error { return nil }
