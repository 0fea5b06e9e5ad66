package storage

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Driver used by tests and by local-development
// runs of the gateway that don't need durability across restarts.
type Memory struct {
	mu      sync.Mutex
	items   map[string]Item
	expires map[string]time.Time
}

// NewMemory returns an empty Memory driver.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]Item), expires: make(map[string]time.Time)}
}

func (m *Memory) Get(_ context.Context, key string) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.expires[key]; ok && time.Now().After(exp) {
		delete(m.items, key)
		delete(m.expires, key)
	}
	item, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	cp := item
	cp.Value = append([]byte(nil), item.Value...)
	return &cp, nil
}

func (m *Memory) Put(_ context.Context, key string, item Item, ttl time.Duration, expectedGeneration uint64, createOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.expires[key]; ok && time.Now().After(exp) {
		delete(m.items, key)
		delete(m.expires, key)
	}
	current, exists := m.items[key]
	if createOnly {
		if exists {
			return ErrConflict
		}
	} else if !exists || current.Generation != expectedGeneration {
		return ErrConflict
	}
	m.items[key] = item
	if ttl > 0 {
		m.expires[key] = time.Now().Add(ttl)
	} else {
		delete(m.expires, key)
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	delete(m.expires, key)
	return nil
}

func (m *Memory) Close() error { return nil }
