// Package events is the in-process publish/subscribe bus the domain
// repositories use to tell API collaborators that something changed.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Well-known event names.
const (
	// TableUpdated carries the table id (int).
	TableUpdated = "table.updated"
	// PaymentAdded carries the table id (int) and the model.Bill.
	PaymentAdded = "payment.added"
)

// DefaultDedupWindow coalesces identical emissions repeated this soon.
const DefaultDedupWindow = 50 * time.Millisecond

// Handler receives the arguments passed to Emit.
type Handler func(args ...any)

type trailing struct {
	name string
	args []any
}

type subscription struct {
	id int
	fn Handler
}

// Bus delivers events synchronously, in subscription order, on the emitting
// goroutine.  Emitting the same name with the same arguments again inside
// the dedup window is deferred: one delivery with the latest arguments runs
// when the window closes, on its own goroutine.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID int

	dedupMu sync.Mutex
	window  time.Duration
	recent  map[uint64]time.Time
	pending map[uint64]*trailing
	now     func() time.Time
	after   func(time.Duration, func())

	log *zap.SugaredLogger
}

// NewBus returns a bus.  window <= 0 disables deduplication.
func NewBus(window time.Duration, log *zap.SugaredLogger) *Bus {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Bus{
		subs:    make(map[string][]subscription),
		window:  window,
		recent:  make(map[uint64]time.Time),
		pending: make(map[uint64]*trailing),
		now:     time.Now,
		after:   func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		log:     log,
	}
}

// SetClock replaces the time source.  Tests only.
func (b *Bus) SetClock(now func() time.Time) {
	b.dedupMu.Lock()
	b.now = now
	b.dedupMu.Unlock()
}

// On registers fn for name and returns a function that removes it.
func (b *Bus) On(name string, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[name]
			for i, s := range list {
				if s.id == id {
					b.subs[name] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(b.subs[name]) == 0 {
				delete(b.subs, name)
			}
		})
	}
}

// Emit delivers args to every handler of name.  It reports whether the
// event was delivered now; false means it was coalesced into a delivery
// scheduled for the end of the dedup window.  A panicking handler is logged
// and does not stop the others.
func (b *Bus) Emit(name string, args ...any) bool {
	if b.coalesce(name, args) {
		return false
	}
	b.deliver(name, args)
	return true
}

func (b *Bus) deliver(name string, args []any) {
	b.mu.RLock()
	list := append([]subscription(nil), b.subs[name]...)
	b.mu.RUnlock()

	for _, s := range list {
		b.call(name, s.fn, args)
	}
}

// Count returns the number of handlers registered for name.
func (b *Bus) Count(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// Clear drops every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.subs = make(map[string][]subscription)
	b.mu.Unlock()
	b.dedupMu.Lock()
	b.recent = make(map[uint64]time.Time)
	b.pending = make(map[uint64]*trailing)
	b.dedupMu.Unlock()
}

func (b *Bus) call(name string, fn Handler, args []any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorw("event handler panicked", "event", name, "panic", fmt.Sprint(r))
		}
	}()
	fn(args...)
}

// coalesce reports whether the emission falls inside the dedup window of an
// identical one.  If so a single trailing delivery is scheduled for it.
func (b *Bus) coalesce(name string, args []any) bool {
	if b.window <= 0 {
		return false
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return false
	}
	d := xxhash.New()
	_, _ = d.WriteString(name)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(payload)
	fp := d.Sum64()

	b.dedupMu.Lock()
	now := b.now()
	if last, ok := b.recent[fp]; ok && now.Sub(last) < b.window {
		if p := b.pending[fp]; p != nil {
			p.args = args
			b.dedupMu.Unlock()
			return true
		}
		p := &trailing{name: name, args: args}
		b.pending[fp] = p
		after, delay := b.after, b.window-now.Sub(last)
		b.dedupMu.Unlock()
		after(delay, func() { b.fireTrailing(fp, p) })
		return true
	}
	b.recent[fp] = now
	delete(b.pending, fp)
	if len(b.recent) > 256 {
		for k, ts := range b.recent {
			if now.Sub(ts) >= b.window {
				delete(b.recent, k)
			}
		}
	}
	b.dedupMu.Unlock()
	return false
}

func (b *Bus) fireTrailing(fp uint64, p *trailing) {
	b.dedupMu.Lock()
	if b.pending[fp] != p {
		b.dedupMu.Unlock()
		return
	}
	delete(b.pending, fp)
	b.recent[fp] = b.now()
	name, args := p.name, p.args
	b.dedupMu.Unlock()
	b.deliver(name, args)
}
