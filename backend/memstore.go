package backend

import (
	"context"
	"sync"
)

// MapBackend is an in-memory Backend for tests and ephemeral agents.
type MapBackend struct {
	data map[string]string
	mu   sync.RWMutex
}

// NewMapBackend creates an empty in-memory backend.
func NewMapBackend() *MapBackend {
	return &MapBackend{data: make(map[string]string)}
}

func (b *MapBackend) Read(ctx context.Context, path string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	val, ok := b.data[path]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (b *MapBackend) Write(ctx context.Context, path string, data string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[path] = data
	return nil
}

func (b *MapBackend) Exists(ctx context.Context, path string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.data[path]
	return ok, nil
}

// Len returns the number of stored paths.
func (b *MapBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

var _ Backend = (*MapBackend)(nil)
