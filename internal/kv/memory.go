package kv

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps everything in a map.  It backs the "memory" storage
// backend and most tests.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]string
	closed bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]string)}
}

// GetItem returns the value stored under key and whether it exists.
func (s *MemoryStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.items[key]
	return v, ok, nil
}

// SetItem stores value under key.
func (s *MemoryStore) SetItem(ctx context.Context, key, value string) error {
	return s.MultiSet(ctx, []Pair{{Key: key, Value: value}})
}

// RemoveItem deletes key.
func (s *MemoryStore) RemoveItem(ctx context.Context, key string) error {
	return s.MultiRemove(ctx, []string{key})
}

// MultiSet stores every pair under one lock.
func (s *MemoryStore) MultiSet(ctx context.Context, pairs []Pair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, p := range pairs {
		s.items[p.Key] = p.Value
	}
	return nil
}

// MultiRemove deletes keys under one lock.
func (s *MemoryStore) MultiRemove(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

// GetAllKeys returns the keys in lexical order.
func (s *MemoryStore) GetAllKeys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close marks the store closed.  Further calls return ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
