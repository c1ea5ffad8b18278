package storage

import (
	"context"
	"encoding/json"
	"sync"
)

type memoryItem struct {
	raw  json.RawMessage
	size int
}

// MemoryStore is a thread-safe in-memory Store with full quota enforcement.
// A single mutex covers validate and apply, so two concurrent writers cannot
// jointly overshoot the aggregate limit.
type MemoryStore struct {
	mu    sync.Mutex
	guard *Guard
	items map[string]memoryItem
	total int
}

// NewMemoryStore creates an empty MemoryStore guarded by limits.
func NewMemoryStore(limits Limits) *MemoryStore {
	return &MemoryStore{
		guard: NewGuard(limits),
		items: make(map[string]memoryItem),
	}
}

// Get returns the stored JSON for key.
func (m *MemoryStore) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	return item.raw, true, nil
}

// Set validates and stores a single key/value pair. A failed validation
// leaves the store untouched.
func (m *MemoryStore) Set(_ context.Context, key string, value any) error {
	raw, err := Encode(key, value)
	if err != nil {
		return err
	}
	size := itemSizeFromRaw(key, raw)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.guard.checkItem(size); err != nil {
		return err
	}
	newTotal := m.total - m.items[key].size + size
	if err := m.guard.checkTotal(newTotal); err != nil {
		return err
	}

	m.items[key] = memoryItem{raw: raw, size: size}
	m.total = newTotal
	return nil
}

// SetBatch validates every item against both limits before applying any.
func (m *MemoryStore) SetBatch(_ context.Context, items map[string]any) error {
	encoded := make(map[string]memoryItem, len(items))
	for key, value := range items {
		raw, err := Encode(key, value)
		if err != nil {
			return err
		}
		encoded[key] = memoryItem{raw: raw, size: itemSizeFromRaw(key, raw)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	newTotal := m.total
	for key, item := range encoded {
		if err := m.guard.checkItem(item.size); err != nil {
			return err
		}
		newTotal += item.size - m.items[key].size
	}
	if err := m.guard.checkTotal(newTotal); err != nil {
		return err
	}

	for key, item := range encoded {
		m.items[key] = item
	}
	m.total = newTotal
	return nil
}

// Remove deletes the given keys.
func (m *MemoryStore) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		if item, ok := m.items[key]; ok {
			m.total -= item.size
			delete(m.items, key)
		}
	}
	return nil
}

// Clear deletes everything.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]memoryItem)
	m.total = 0
	return nil
}

// BytesInUse returns the accounted aggregate size.
func (m *MemoryStore) BytesInUse(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total, nil
}

// Limits reports the enforced byte budgets.
func (m *MemoryStore) Limits() Limits { return m.guard.Limits() }

// Keys lists all stored keys.
func (m *MemoryStore) Keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.items))
	for key := range m.items {
		keys = append(keys, key)
	}
	return keys, nil
}
