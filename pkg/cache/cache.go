// Package cache provides a generic LRU cache with hit statistics and
// msgpack persistence.
package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Entry represents a cache entry with metadata.
type Entry[V any] struct {
	Key        string    `msgpack:"key"`
	Value      V         `msgpack:"value"`
	AccessedAt time.Time `msgpack:"accessed_at"`
	CreatedAt  time.Time `msgpack:"created_at"`
	Size       int       `msgpack:"size"` // estimated size in bytes
}

// listItem is an item in the doubly-linked list.
type listItem[V any] struct {
	Entry[V]
	prev *listItem[V]
	next *listItem[V]
}

// list is a doubly-linked list with the most recently used item at the head.
type list[V any] struct {
	head *listItem[V]
	tail *listItem[V]
	len  int
}

// unlink removes an item from the list.
func (l *list[V]) unlink(item *listItem[V]) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	item.prev, item.next = nil, nil
	l.len--
}

// pushFront adds an item to the front of the list.
func (l *list[V]) pushFront(item *listItem[V]) {
	item.next = l.head
	item.prev = nil
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

// moveToFront moves an item to the front (most recently used).
func (l *list[V]) moveToFront(item *listItem[V]) {
	if item == l.head {
		return
	}
	l.unlink(item)
	l.pushFront(item)
}

// Options configures the LRU cache.
type Options[V any] struct {
	// MaxSize is the maximum number of entries.
	// 0 means unlimited.
	MaxSize int

	// MaxBytes is the approximate maximum size in bytes.
	// 0 means unlimited. Requires SizeOf.
	MaxBytes int64

	// SizeOf estimates the size of a value in bytes.
	SizeOf func(V) int

	// OnEvict is called when an entry is evicted.
	OnEvict func(key string, value V)
}

// Stats returns cache statistics.
type Stats struct {
	Length       int   `json:"length"`
	CurrentBytes int64 `json:"current_bytes"`
	HitCount     int64 `json:"hit_count"`
	MissCount    int64 `json:"miss_count"`
	Evictions    int64 `json:"evictions"`
}

// HitRate returns the share of lookups that were hits.
func (s Stats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}

// LRU is an in-memory LRU cache that tracks hits and misses and can be
// persisted with msgpack. It is safe for concurrent use.
type LRU[V any] struct {
	mu           sync.Mutex
	items        map[string]*listItem[V]
	lru          *list[V]
	opts         Options[V]
	currentBytes int64
	hits         int64
	misses       int64
	evictions    int64
}

// New creates a new LRU cache with the given options.
func New[V any](opts Options[V]) *LRU[V] {
	return &LRU[V]{
		items: make(map[string]*listItem[V]),
		lru:   &list[V]{},
		opts:  opts,
	}
}

// Get retrieves a value and records a hit or a miss.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	item.AccessedAt = time.Now()
	c.lru.moveToFront(item)
	return item.Value, true
}

// Peek retrieves a value without touching recency or statistics.
func (c *LRU[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.items[key]; ok {
		return item.Value, true
	}
	var zero V
	return zero, false
}

// Set stores a value in the cache.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.sizeOf(value)
	now := time.Now()

	if item, exists := c.items[key]; exists {
		c.currentBytes += int64(size - item.Size)
		item.Value = value
		item.Size = size
		item.AccessedAt = now
		c.lru.moveToFront(item)
		c.evictIfNeeded()
		return
	}

	item := &listItem[V]{Entry: Entry[V]{
		Key:        key,
		Value:      value,
		AccessedAt: now,
		CreatedAt:  now,
		Size:       size,
	}}
	c.items[key] = item
	c.lru.pushFront(item)
	c.currentBytes += int64(size)
	c.evictIfNeeded()
}

func (c *LRU[V]) sizeOf(v V) int {
	if c.opts.SizeOf == nil {
		return 0
	}
	return c.opts.SizeOf(v)
}

// Delete removes a key from the cache.
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return
	}
	c.lru.unlink(item)
	delete(c.items, key)
	c.currentBytes -= int64(item.Size)
}

// Clear removes all entries from the cache. Statistics are kept.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*listItem[V])
	c.lru = &list[V]{}
	c.currentBytes = 0
}

// Len returns the number of entries in the cache.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns the current cache statistics.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Length:       len(c.items),
		CurrentBytes: c.currentBytes,
		HitCount:     c.hits,
		MissCount:    c.misses,
		Evictions:    c.evictions,
	}
}

// ResetStats resets the statistics counters.
func (c *LRU[V]) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits, c.misses, c.evictions = 0, 0, 0
}

// evictIfNeeded evicts entries if the cache exceeds its limits.
func (c *LRU[V]) evictIfNeeded() {
	for c.shouldEvict() {
		item := c.lru.tail
		if item == nil {
			break
		}
		c.lru.unlink(item)
		delete(c.items, item.Key)
		c.currentBytes -= int64(item.Size)
		c.evictions++

		if c.opts.OnEvict != nil {
			c.opts.OnEvict(item.Key, item.Value)
		}
	}
}

// shouldEvict returns true if the cache should evict entries.
func (c *LRU[V]) shouldEvict() bool {
	if c.opts.MaxSize > 0 && c.lru.len > c.opts.MaxSize {
		return true
	}
	if c.opts.MaxBytes > 0 && c.currentBytes > c.opts.MaxBytes && c.lru.len > 1 {
		return true
	}
	return false
}

// Save persists the cache to a writer using msgpack, most recent entry
// first.
func (c *LRU[V]) Save(w io.Writer) error {
	c.mu.Lock()
	entries := make([]Entry[V], 0, len(c.items))
	for item := c.lru.head; item != nil; item = item.next {
		entries = append(entries, item.Entry)
	}
	c.mu.Unlock()

	if err := msgpack.NewEncoder(w).Encode(entries); err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	return nil
}

// Load restores the cache from a reader using msgpack, replacing its
// contents.
func (c *LRU[V]) Load(r io.Reader) error {
	var entries []Entry[V]
	if err := msgpack.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*listItem[V])
	c.lru = &list[V]{}
	c.currentBytes = 0

	for i := len(entries) - 1; i >= 0; i-- {
		item := &listItem[V]{Entry: entries[i]}
		c.items[item.Key] = item
		c.lru.pushFront(item)
		c.currentBytes += int64(item.Size)
	}
	c.evictIfNeeded()
	return nil
}

// PersistToFile saves the cache to a file, creating parent directories.
func PersistToFile[V any](c *LRU[V], path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()
	return c.Save(f)
}

// LoadFromFile loads the cache from a file. A missing file is not an error.
func LoadFromFile[V any](c *LRU[V], path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()
	return c.Load(f)
}
