// Package promptcache provides a bounded FIFO memoization cache for prompt
// completions, keyed by a deterministic hash of the rendered prompt text.
// Unlike an LRU, a cache hit does not refresh an entry's position: eviction
// order is pure insertion order.
package promptcache

import (
	"container/list"
	"strconv"
	"sync"
	"unicode/utf16"
)

// DefaultCapacity is the entry limit used when no capacity is configured.
const DefaultCapacity = 100

// Result is the memoized outcome of a remote generation call. Exactly one of
// Text or ErrMessage is expected to be set; cached remote errors replay as
// errors on subsequent hits.
type Result struct {
	Text       string `json:"responseText,omitempty"`
	ErrMessage string `json:"error,omitempty"`
}

// Key returns the cache key for a rendered prompt: a djb2 hash (seed 5381,
// h = h*33 + codeUnit) accumulated over the UTF-16 code units of the input
// with unsigned 32-bit wraparound, rendered as lowercase hex. Characters
// outside the BMP contribute two code units (their surrogate pair).
func Key(prompt string) string {
	h := uint32(5381)
	for _, u := range utf16.Encode([]rune(prompt)) {
		h = h*33 + uint32(u)
	}
	return strconv.FormatUint(uint64(h), 16)
}

type entry struct {
	key    string
	result Result
}

// Cache is a thread-safe FIFO-evicting prompt result cache.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = newest insert, back = oldest
}

// New creates a Cache holding at most capacity entries. Non-positive
// capacities fall back to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached result for key. It never mutates eviction order.
func (c *Cache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return Result{}, false
	}
	return elem.Value.(*entry).result, true
}

// Put inserts or overwrites an entry. Overwriting an existing key keeps its
// original position in the eviction order. Inserting a new key while the
// cache is full first evicts the oldest-inserted entry.
func (c *Cache) Put(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*entry).result = result
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}
	c.items[key] = c.order.PushFront(&entry{key: key, result: result})
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

func (c *Cache) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}
