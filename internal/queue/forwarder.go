package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-pos/internal/events"
	"github.com/iliyamo/restaurant-pos/internal/model"
)

// Sink receives forwarded events.  *Publisher implements it.
type Sink interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

type job struct {
	eventType string
	payload   any
}

// Forwarder subscribes to the event bus and hands events to a Sink on a
// background goroutine, so a slow broker never blocks the request that
// emitted the event.  When the buffer is full the event is dropped and
// logged.
type Forwarder struct {
	sink    Sink
	log     *zap.SugaredLogger
	timeout time.Duration
	jobs    chan job

	unsubs []func()
	done   chan struct{}
	once   sync.Once

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewForwarder returns a Forwarder with room for buffer queued events.
func NewForwarder(sink Sink, buffer int, log *zap.SugaredLogger) *Forwarder {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Forwarder{
		sink:    sink,
		log:     log,
		timeout: 5 * time.Second,
		jobs:    make(chan job, buffer),
		done:    make(chan struct{}),
	}
}

// Start subscribes to bus and starts the delivery goroutine.
func (f *Forwarder) Start(bus *events.Bus) {
	f.unsubs = append(f.unsubs,
		bus.On(events.TableUpdated, func(args ...any) {
			id, ok := argInt(args, 0)
			if !ok {
				return
			}
			f.enqueue(events.TableUpdated, TableUpdatedEvent{
				TableID:    id,
				OccurredAt: time.Now().UTC().Format(time.RFC3339),
			})
		}),
		bus.On(events.PaymentAdded, func(args ...any) {
			if len(args) < 2 {
				return
			}
			b, ok := args[1].(model.Bill)
			if !ok {
				return
			}
			f.enqueue(events.PaymentAdded, NewPaymentAddedEvent(b))
		}),
	)
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	go f.run()
}

// Stop unsubscribes and waits for queued events to be delivered.
func (f *Forwarder) Stop() {
	f.once.Do(func() {
		for _, u := range f.unsubs {
			u()
		}
		f.mu.Lock()
		f.stopped = true
		started := f.started
		close(f.jobs)
		f.mu.Unlock()
		if started {
			<-f.done
		}
	})
}

func (f *Forwarder) enqueue(eventType string, payload any) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.stopped {
		return
	}
	select {
	case f.jobs <- job{eventType: eventType, payload: payload}:
	default:
		f.log.Warnw("event forwarder full, dropping event", "event", eventType)
	}
}

func (f *Forwarder) run() {
	defer close(f.done)
	for j := range f.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		if err := f.sink.Publish(ctx, j.eventType, j.payload); err != nil {
			f.log.Warnw("forwarding event failed", "event", j.eventType, "error", err)
		}
		cancel()
	}
}

func argInt(args []any, i int) (int, bool) {
	if len(args) <= i {
		return 0, false
	}
	v, ok := args[i].(int)
	return v, ok
}
