// Package loader collapses concurrent loads of the same key into one call.
//
// This is what keeps two first reads of an empty collection (boot seeding
// tables while a request also asks for them) from both concluding the
// collection is empty and seeding it twice.
package loader

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Group runs at most one loader per key at a time.
type Group[V any] struct {
	sf singleflight.Group

	mu       sync.Mutex
	inflight map[string]int
}

// New returns an empty Group.
func New[V any]() *Group[V] {
	return &Group[V]{inflight: make(map[string]int)}
}

// GetOrLoad returns the result of fn for key, sharing one in-flight call
// among all concurrent callers.  The shared call is detached from the first
// caller's cancellation so one impatient caller cannot fail the others; each
// caller still stops waiting when its own ctx is done.  Once fn returns, the
// key is free again and the next call loads afresh.
func (g *Group[V]) GetOrLoad(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	shared := context.WithoutCancel(ctx)
	ch := g.sf.DoChan(key, func() (any, error) {
		g.track(key, 1)
		defer g.track(key, -1)
		return fn(shared)
	})
	var zero V
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// InFlight reports whether a load for key is running.
func (g *Group[V]) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight[key] > 0
}

// Forget makes the next call for key start a new load even if one is
// running.  Used after the underlying value was reset.
func (g *Group[V]) Forget(key string) {
	g.sf.Forget(key)
}

func (g *Group[V]) track(key string, delta int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inflight[key] += delta
	if g.inflight[key] <= 0 {
		delete(g.inflight, key)
	}
}
