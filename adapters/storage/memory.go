package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps documents in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

// Get implements domain.SettingsBackend.
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

// Put implements domain.SettingsBackend.
func (m *MemoryBackend) Put(ctx context.Context, key string, document []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := make([]byte, len(document))
	copy(doc, document)
	m.docs[key] = doc
	return nil
}

// Delete implements domain.SettingsBackend.
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.docs, key)
	return nil
}

// Close implements domain.SettingsBackend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs = make(map[string][]byte)
	return nil
}
