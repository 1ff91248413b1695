// Package bus fans out decoded real-time events to per-category subscriber
// sets. Handlers run synchronously in subscription order; a panicking handler
// is isolated and never takes down the dispatch or its siblings.
package bus

import (
	"log/slog"
	"sync"

	"beeline/internal/domain"
	"beeline/internal/metrics"

	"github.com/google/uuid"
)

// Handler is a callback for events of one category.
type Handler func(domain.Event)

// subscription pairs a handler with an id used for removal.
type subscription struct {
	id string
	fn Handler
}

// Dispatcher is a category-keyed publish/subscribe registry.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[domain.EventKind][]subscription
	logger   *slog.Logger
}

// New creates an empty Dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[domain.EventKind][]subscription),
		logger:   logger,
	}
}

// On registers a handler for the given event kind and returns an opaque id
// for Off. Multiple handlers per kind are allowed.
func (d *Dispatcher) On(kind domain.EventKind, fn Handler) string {
	id := uuid.NewString()
	d.mu.Lock()
	d.handlers[kind] = append(d.handlers[kind], subscription{id: id, fn: fn})
	d.mu.Unlock()
	return id
}

// Off removes the handler registered under id. Removing an unknown id is a
// no-op. A dispatch already in flight still delivers to the removed handler.
func (d *Dispatcher) Off(kind domain.EventKind, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.handlers[kind]
	for i, s := range subs {
		if s.id == id {
			d.handlers[kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit delivers ev to every handler currently subscribed to its kind,
// synchronously, in registration order. The subscriber set is snapshotted
// first, so Off called from inside a handler does not affect this dispatch.
func (d *Dispatcher) Emit(ev domain.Event) {
	d.mu.RLock()
	subs := d.handlers[ev.Kind()]
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	d.mu.RUnlock()

	metrics.EventsDispatched.Inc()
	for _, s := range snapshot {
		d.call(s, ev)
	}
}

func (d *Dispatcher) call(s subscription, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerPanics.Inc()
			d.logger.Error("event handler panic",
				"kind", ev.Kind().String(),
				"handler", s.id,
				"panic", r,
			)
		}
	}()
	s.fn(ev)
}

// SubscriberCount returns how many handlers are registered for kind.
func (d *Dispatcher) SubscriberCount(kind domain.EventKind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[kind])
}
