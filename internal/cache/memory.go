// Package cache holds the bounded in-process cache the storage manager keeps
// in front of the key-value store.
package cache

import (
	"sort"
	"sync"
	"time"
)

// Defaults used when a Config field is zero.
const (
	DefaultMaxEntries = 50
	DefaultMaxBytes   = 5 << 20
	DefaultTTL        = 5 * time.Minute
)

// evictFraction is the share of entries dropped per eviction pass.
const evictFraction = 0.3

// Config bounds the cache.  Both caps apply independently.
type Config struct {
	MaxEntries int
	MaxBytes   int
	TTL        time.Duration
}

// Entry is one cached value with its bookkeeping.
type Entry[V any] struct {
	Data      V
	Timestamp time.Time
	Size      int
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Entries    int   `json:"entries"`
	Bytes      int   `json:"bytes"`
	MaxEntries int   `json:"maxEntries"`
	MaxBytes   int   `json:"maxBytes"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Expired    int64 `json:"expired"`
}

// Memory is a size- and age-bounded map.  Eviction works in batches: once a
// cap is exceeded, expired entries go first, then the oldest ~30% by
// timestamp, so a burst of inserts does not re-sort on every Set.
type Memory[V any] struct {
	mu      sync.Mutex
	cfg     Config
	sizeOf  func(V) int
	entries map[string]*Entry[V]
	total   int
	now     func() time.Time

	hits, misses, evictions, expired int64
}

// New returns an empty cache.  sizeOf estimates the footprint of a value in
// bytes.
func New[V any](cfg Config, sizeOf func(V) int) *Memory[V] {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Memory[V]{
		cfg:     cfg,
		sizeOf:  sizeOf,
		entries: make(map[string]*Entry[V]),
		now:     time.Now,
	}
}

// SetClock replaces the time source.  Tests only.
func (m *Memory[V]) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Get returns the value for key.  Entries older than the TTL are removed and
// reported as missing.
func (m *Memory[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero V
	e, ok := m.entries[key]
	if !ok {
		m.misses++
		return zero, false
	}
	if m.now().Sub(e.Timestamp) > m.cfg.TTL {
		m.remove(key)
		m.expired++
		m.misses++
		return zero, false
	}
	m.hits++
	return e.Data, true
}

// Set stores value under key and enforces the caps.
func (m *Memory[V]) Set(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(key)
	size := m.sizeOf(value)
	m.entries[key] = &Entry[V]{Data: value, Timestamp: m.now(), Size: size}
	m.total += size
	if m.overCapacity() {
		m.cleanup()
		for m.overCapacity() && len(m.entries) > 0 {
			m.evictOldest()
		}
	}
}

// Delete drops key if present.
func (m *Memory[V]) Delete(key string) {
	m.mu.Lock()
	m.remove(key)
	m.mu.Unlock()
}

// Clear empties the cache.  Counters survive.
func (m *Memory[V]) Clear() {
	m.mu.Lock()
	m.entries = make(map[string]*Entry[V])
	m.total = 0
	m.mu.Unlock()
}

// Len returns the number of entries, expired ones included.
func (m *Memory[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stats reports sizes and counters.
func (m *Memory[V]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Entries:    len(m.entries),
		Bytes:      m.total,
		MaxEntries: m.cfg.MaxEntries,
		MaxBytes:   m.cfg.MaxBytes,
		Hits:       m.hits,
		Misses:     m.misses,
		Evictions:  m.evictions,
		Expired:    m.expired,
	}
}

func (m *Memory[V]) remove(key string) {
	if e, ok := m.entries[key]; ok {
		m.total -= e.Size
		delete(m.entries, key)
	}
}

func (m *Memory[V]) overCapacity() bool {
	return len(m.entries) > m.cfg.MaxEntries || m.total > m.cfg.MaxBytes
}

// cleanup drops expired entries and recomputes the byte total.
func (m *Memory[V]) cleanup() {
	now := m.now()
	total := 0
	for k, e := range m.entries {
		if now.Sub(e.Timestamp) > m.cfg.TTL {
			delete(m.entries, k)
			m.expired++
			continue
		}
		total += e.Size
	}
	m.total = total
}

// evictOldest removes the oldest ~30% of entries, at least one.
func (m *Memory[V]) evictOldest() {
	type aged struct {
		key string
		ts  time.Time
	}
	all := make([]aged, 0, len(m.entries))
	for k, e := range m.entries {
		all = append(all, aged{k, e.Timestamp})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ts.Equal(all[j].ts) {
			return all[i].key < all[j].key
		}
		return all[i].ts.Before(all[j].ts)
	})
	n := int(float64(len(all)) * evictFraction)
	if n < 1 {
		n = 1
	}
	for _, a := range all[:n] {
		m.remove(a.key)
		m.evictions++
	}
}
