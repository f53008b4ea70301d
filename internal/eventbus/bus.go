// Package eventbus provides an in-process pub/sub event bus for domain events.
// Session mutations publish events; subscribers process them asynchronously
// so a listing store never waits on logging, metrics or the activity log.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matthewbaird/mobi/internal/event"
)

// Handler processes a domain event. Implementations must be safe for
// concurrent calls from different goroutines.
type Handler interface {
	HandleEvent(ctx context.Context, evt event.DomainEvent) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt event.DomainEvent) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	return f(ctx, evt)
}

// Bus is a simple in-process event bus. Events are published to a buffered
// channel and dispatched to all subscribers in a single consumer goroutine.
// This serialises event processing, which keeps SQLite writes from the
// activity indexer on one connection.
type Bus struct {
	mu          sync.RWMutex
	subscribers []namedHandler
	closed      bool

	events  chan event.DomainEvent
	done    chan struct{}
	started atomic.Bool
	dropped atomic.Uint64
}

var _ event.Publisher = (*Bus)(nil)

type namedHandler struct {
	name    string
	handler Handler
}

// New creates a new Bus with the given channel buffer size.
func New(bufSize int) *Bus {
	if bufSize < 1 {
		bufSize = 256
	}
	return &Bus{
		events: make(chan event.DomainEvent, bufSize),
		done:   make(chan struct{}),
	}
}

// Subscribe registers a named handler. Must be called before Start.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, namedHandler{name: name, handler: h})
}

// Publish sends an event to the bus. Non-blocking: if the buffer is full or
// the bus is stopped the event is dropped and a warning is logged.
func (b *Bus) Publish(_ context.Context, evt event.DomainEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.drop(evt, "bus stopped")
		return
	}
	select {
	case b.events <- evt:
	default:
		b.drop(evt, "buffer full")
	}
}

func (b *Bus) drop(evt event.DomainEvent, reason string) {
	b.dropped.Add(1)
	zap.L().Warn("eventbus: dropping event",
		zap.String("reason", reason),
		zap.String("event_type", evt.EventType),
		zap.String("event_id", evt.ID),
	)
}

// Dropped returns how many events were discarded.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Start begins the consumer goroutine. It processes events until the
// context is cancelled or Stop is called.
func (b *Bus) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(b.done)
		for {
			select {
			case evt, ok := <-b.events:
				if !ok {
					return
				}
				b.dispatch(ctx, evt)
			case <-ctx.Done():
				// Drain remaining events before exiting.
				for {
					select {
					case evt, ok := <-b.events:
						if !ok {
							return
						}
						b.dispatch(context.WithoutCancel(ctx), evt)
					default:
						return
					}
				}
			}
		}
	}()
}

// Run starts the bus and blocks until ctx is cancelled, then stops it.
func (b *Bus) Run(ctx context.Context) error {
	b.Start(ctx)
	<-ctx.Done()
	b.Stop()
	return nil
}

// Stop closes the bus and waits for the consumer goroutine to finish. Queued
// events are still dispatched. Stop is idempotent.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	b.mu.Unlock()
	if b.started.Load() {
		<-b.done
	}
}

func (b *Bus) dispatch(ctx context.Context, evt event.DomainEvent) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, s := range subs {
		if err := safeHandle(ctx, s.handler, evt); err != nil {
			zap.L().Error("eventbus: handler error",
				zap.String("handler", s.name),
				zap.String("event_type", evt.EventType),
				zap.Error(err),
			)
		}
	}
}

func safeHandle(ctx context.Context, h Handler, evt event.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("panic: %v", r)
		}
	}()
	return h.HandleEvent(ctx, evt)
}
