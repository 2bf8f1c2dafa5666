// Package kvtest provides store wrappers for tests that need to observe or
// stall the physical reads and writes the storage manager performs.
package kvtest

import (
	"context"
	"sync"

	"github.com/iliyamo/restaurant-pos/internal/kv"
)

// CountingStore records every call that reaches the wrapped store.
// When Gate is non-nil GetItem blocks until it is closed, which lets a test
// hold several loads in flight at once.  WriteGate does the same for SetItem
// and MultiSet once the call has been counted.  Setting FailWrites makes
// SetItem and MultiSet return that error without touching the inner store.
type CountingStore struct {
	Inner     kv.Store
	Gate      chan struct{}
	WriteGate chan struct{}

	mu         sync.Mutex
	gets       map[string]int
	sets       map[string]int
	lastSet    map[string]string
	multiSets  int
	FailWrites error
	FailReads  error
}

// New wraps a fresh in-memory store.
func New() *CountingStore {
	return Wrap(kv.NewMemoryStore())
}

// Wrap wraps inner.
func Wrap(inner kv.Store) *CountingStore {
	return &CountingStore{
		Inner:   inner,
		gets:    make(map[string]int),
		sets:    make(map[string]int),
		lastSet: make(map[string]string),
	}
}

func (s *CountingStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	s.gets[key]++
	gate, failErr := s.Gate, s.FailReads
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	if failErr != nil {
		return "", false, failErr
	}
	return s.Inner.GetItem(ctx, key)
}

func (s *CountingStore) SetItem(ctx context.Context, key, value string) error {
	s.mu.Lock()
	failErr := s.FailWrites
	if failErr == nil {
		s.sets[key]++
		s.lastSet[key] = value
	}
	gate := s.WriteGate
	s.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	if err := wait(ctx, gate); err != nil {
		return err
	}
	return s.Inner.SetItem(ctx, key, value)
}

func (s *CountingStore) RemoveItem(ctx context.Context, key string) error {
	return s.Inner.RemoveItem(ctx, key)
}

func (s *CountingStore) MultiSet(ctx context.Context, pairs []kv.Pair) error {
	s.mu.Lock()
	failErr := s.FailWrites
	if failErr == nil {
		s.multiSets++
		for _, p := range pairs {
			s.sets[p.Key]++
			s.lastSet[p.Key] = p.Value
		}
	}
	gate := s.WriteGate
	s.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	if err := wait(ctx, gate); err != nil {
		return err
	}
	return s.Inner.MultiSet(ctx, pairs)
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CountingStore) MultiRemove(ctx context.Context, keys []string) error {
	return s.Inner.MultiRemove(ctx, keys)
}

func (s *CountingStore) GetAllKeys(ctx context.Context) ([]string, error) {
	return s.Inner.GetAllKeys(ctx)
}

// Gets returns how many times GetItem was called for key.
func (s *CountingStore) Gets(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[key]
}

// Sets returns how many physical writes key received, through either
// SetItem or MultiSet.
func (s *CountingStore) Sets(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[key]
}

// LastSet returns the last raw value written for key.
func (s *CountingStore) LastSet(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSet[key]
}

// MultiSets returns how many MultiSet batches were issued.
func (s *CountingStore) MultiSets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.multiSets
}
