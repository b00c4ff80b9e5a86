package kv

import (
	"context"
	"sync"
)

// MemoryStorage is a process-local Storage. Nothing survives Close.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string

	// FailWrites makes every Set and Remove return the given error.
	// Used to exercise best-effort persistence.
	FailWrites error
	// FailReads makes every Get return the given error.
	FailReads error
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

func (m *MemoryStorage) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailReads != nil {
		return "", false, m.FailReads
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	delete(m.values, key)
	return nil
}

func (m *MemoryStorage) Close() error { return nil }
