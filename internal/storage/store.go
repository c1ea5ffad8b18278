package storage

import (
	"context"
	"encoding/json"
)

// Store is the key/value storage contract consumed by the settings layer.
// Values are arbitrary JSON-serializable data; implementations must run
// Guard validation before applying any mutation, and batch writes are
// all-or-nothing.
type Store interface {
	// Get returns the stored JSON for key, with ok=false on absence.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	// Set validates and stores a single key/value pair.
	Set(ctx context.Context, key string, value any) error
	// SetBatch validates all items first, then applies them atomically.
	SetBatch(ctx context.Context, items map[string]any) error
	// Remove deletes the given keys; missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error
	// Clear deletes everything.
	Clear(ctx context.Context) error
	// BytesInUse returns the accounted aggregate size of all entries.
	BytesInUse(ctx context.Context) (int, error)
	// Keys lists all stored keys.
	Keys(ctx context.Context) ([]string, error)
	// Limits reports the byte budgets this store enforces.
	Limits() Limits
}

// GetJSON fetches key from s and unmarshals it into out. ok=false when the
// key is absent.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}
