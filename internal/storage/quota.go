// Package storage provides a quota-enforcing key/value store abstraction.
// Every write is validated against a per-item byte limit and an aggregate
// byte limit before it reaches the backend, using the same size accounting
// the backend itself uses. Backends: in-memory (MemoryStore) and
// SQLite/Postgres (SQLStore).
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Default limits mirror a common browser sync-storage contract: 8 KiB per
// item, 100 KiB aggregate.
const (
	DefaultItemBytes  = 8192
	DefaultTotalBytes = 102400

	// Per-item framing overhead: the stored key is framed like a JSON object
	// key (two quotes) followed by a separating colon.
	keyFramingBytes   = 2
	valueFramingBytes = 1
)

// ErrInvalidValue reports a value that cannot be JSON-serialized.
var ErrInvalidValue = errors.New("value is not serializable")

// ErrQuotaExceeded reports an item or aggregate size limit violation.
var ErrQuotaExceeded = errors.New("quota exceeded")

// InvalidValueError wraps the serialization failure for a specific key.
type InvalidValueError struct {
	Key   string
	Cause error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value for key %q: %v", e.Key, e.Cause)
}

func (e *InvalidValueError) Unwrap() error { return e.Cause }

// Is reports true for ErrInvalidValue so callers can use errors.Is.
func (e *InvalidValueError) Is(target error) bool { return target == ErrInvalidValue }

// QuotaError carries the computed size and the limit it violated.
type QuotaError struct {
	Scope string // "item" or "total"
	Size  int
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded: size %d bytes exceeds limit of %d", e.Scope, e.Size, e.Limit)
}

// Is reports true for ErrQuotaExceeded so callers can use errors.Is.
func (e *QuotaError) Is(target error) bool { return target == ErrQuotaExceeded }

// Limits holds the per-item and aggregate byte budgets.
type Limits struct {
	ItemBytes  int `json:"item_bytes" yaml:"item_bytes"`
	TotalBytes int `json:"total_bytes" yaml:"total_bytes"`
}

// DefaultLimits returns the browser sync-storage defaults.
func DefaultLimits() Limits {
	return Limits{ItemBytes: DefaultItemBytes, TotalBytes: DefaultTotalBytes}
}

func (l Limits) withDefaults() Limits {
	if l.ItemBytes <= 0 {
		l.ItemBytes = DefaultItemBytes
	}
	if l.TotalBytes <= 0 {
		l.TotalBytes = DefaultTotalBytes
	}
	return l
}

// Encode serializes a value the way the storage layer accounts for it:
// compact JSON with HTML escaping disabled, so size matches the UTF-8
// length of a plain JSON.stringify rendering. A non-serializable value
// (e.g. a cyclic structure) yields an InvalidValueError.
func Encode(key string, value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, &InvalidValueError{Key: key, Cause: err}
	}
	// Encoder appends a newline that is not part of the serialized form.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ValueSize returns the UTF-8 byte length of the JSON serialization of value.
func ValueSize(value any) (int, error) {
	raw, err := Encode("", value)
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}

// ItemSize returns the accounted size of one stored entry: the UTF-8 key
// length plus key framing, plus the serialized value plus value framing.
func ItemSize(key string, value any) (int, error) {
	n, err := ValueSize(value)
	if err != nil {
		if ive, ok := err.(*InvalidValueError); ok {
			ive.Key = key
		}
		return 0, err
	}
	return len(key) + keyFramingBytes + n + valueFramingBytes, nil
}

func itemSizeFromRaw(key string, raw []byte) int {
	return len(key) + keyFramingBytes + len(raw) + valueFramingBytes
}

// Guard validates proposed writes against Limits before they reach a backend.
type Guard struct {
	limits Limits
}

// NewGuard creates a Guard. Zero or negative limit fields fall back to the
// defaults.
func NewGuard(limits Limits) *Guard {
	return &Guard{limits: limits.withDefaults()}
}

// Limits returns the effective limits.
func (g *Guard) Limits() Limits { return g.limits }

// ValidateItem checks a single key/value pair against the per-item limit.
func (g *Guard) ValidateItem(key string, value any) error {
	size, err := ItemSize(key, value)
	if err != nil {
		return err
	}
	return g.checkItem(size)
}

// ValidateTotal checks what the aggregate size would become if key were set
// to value given the current contents. Overwriting an existing key does not
// double-count its old size.
func (g *Guard) ValidateTotal(key string, value any, current map[string]any) error {
	total, err := aggregateSize(current)
	if err != nil {
		return err
	}
	size, err := ItemSize(key, value)
	if err != nil {
		return err
	}
	if old, ok := current[key]; ok {
		oldSize, err := ItemSize(key, old)
		if err != nil {
			return err
		}
		total -= oldSize
	}
	return g.checkTotal(total + size)
}

// ValidateBatch checks every item in the batch against the per-item limit and
// the batch as a whole against the aggregate limit. It never partially
// accepts: the first violation fails the whole batch.
func (g *Guard) ValidateBatch(items map[string]any, current map[string]any) error {
	total, err := aggregateSize(current)
	if err != nil {
		return err
	}
	for key, value := range items {
		size, err := ItemSize(key, value)
		if err != nil {
			return err
		}
		if err := g.checkItem(size); err != nil {
			return err
		}
		if old, ok := current[key]; ok {
			oldSize, err := ItemSize(key, old)
			if err != nil {
				return err
			}
			total -= oldSize
		}
		total += size
	}
	return g.checkTotal(total)
}

func (g *Guard) checkItem(size int) error {
	if size > g.limits.ItemBytes {
		return &QuotaError{Scope: "item", Size: size, Limit: g.limits.ItemBytes}
	}
	return nil
}

func (g *Guard) checkTotal(size int) error {
	if size > g.limits.TotalBytes {
		return &QuotaError{Scope: "total", Size: size, Limit: g.limits.TotalBytes}
	}
	return nil
}

func aggregateSize(current map[string]any) (int, error) {
	var total int
	for key, value := range current {
		size, err := ItemSize(key, value)
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}
