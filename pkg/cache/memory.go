package cache

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process Store, mostly useful for dry runs and tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]Entry{}}
}

func (m *Memory) Get(ctx context.Context, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) Put(ctx context.Context, key string, e Entry) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

func (m *Memory) List(ctx context.Context, prefix string) (map[string]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Entry)
	for k, e := range m.entries {
		if strings.HasPrefix(k, prefix) {
			out[k] = e
		}
	}
	return out, nil
}
