// Package kv defines the string-keyed persistent store the POS core writes to
// and the backends that implement it.  The core treats every backend as an
// opaque, possibly slow store; nothing here is transactional across keys
// unless the backend's MultiSet happens to be.
package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by backends after Close has been called.
var ErrClosed = errors.New("kv store closed")

// Pair is one key/value couple for MultiSet.
type Pair struct {
	Key   string
	Value string
}

// Store is the platform key-value contract used by the storage manager.
// GetItem reports found=false when the key is absent.
type Store interface {
	GetItem(ctx context.Context, key string) (value string, found bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	MultiSet(ctx context.Context, pairs []Pair) error
	MultiRemove(ctx context.Context, keys []string) error
	GetAllKeys(ctx context.Context) ([]string, error)
}
