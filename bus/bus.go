// Package bus is the in-process publish/subscribe layer that decouples
// transport message arrival from reaction logic. Topics are colon-
// delimited (e.g. "workeffort:completed"); subscriptions may use a
// trailing wildcard segment ("workeffort:*").
package bus

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Event is an immutable, fire-and-forget bus message. There is no
// persistence guarantee.
type Event struct {
	Type      string
	Data      any
	Timestamp time.Time
}

// Handler reacts to a delivered event. Handlers must not assume they
// are the only subscriber for a topic.
type Handler func(Event)

// Middleware runs before handlers; returning false short-circuits
// delivery of the event to handlers (and to later middleware).
type Middleware func(Event) bool

// Subscription identifies one registered handler for removal via Off.
type Subscription struct {
	id      uint64
	pattern string
}

type subscriber struct {
	id      uint64
	pattern string
	handler Handler
}

// Bus dispatches events synchronously to matching subscribers. Emit,
// On, Off and Use are safe for concurrent use. Handlers run on the
// emitting goroutine, so concurrent Emit calls run handlers
// concurrently: handlers that touch shared state must do their own
// locking. Handlers may Emit further events; the lock is not held
// during dispatch, so re-entrant emission cannot deadlock.
type Bus struct {
	mu          sync.Mutex
	nextID      uint64
	subscribers []subscriber
	middleware  []Middleware
	history     []Event
	historyCap  int

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithHistory retains the last n emitted events in a ring buffer for
// introspection. This is a diagnostic aid, not a delivery guarantee.
func WithHistory(n int) Option {
	return func(b *Bus) { b.historyCap = n }
}

// New returns an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{Now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On registers handler for every event whose type matches pattern.
// Patterns are exact topics or a prefix with a trailing "*" segment:
// "workeffort:*" matches "workeffort:created" but not "ticket:created".
func (b *Bus) On(pattern string, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := subscriber{id: b.nextID, pattern: pattern, handler: handler}
	b.subscribers = append(b.subscribers, sub)
	return Subscription{id: sub.id, pattern: pattern}
}

// Off removes a previously registered subscription. Removing an
// already-removed subscription is a no-op.
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s.id == sub.id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Use appends mw to the middleware chain. Middleware runs in
// registration order before any handler sees the event.
func (b *Bus) Use(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
}

// Emit synchronously delivers an event to every matching subscriber,
// middleware first. A panicking handler is recovered and logged so one
// failing subscriber never blocks the others.
func (b *Bus) Emit(eventType string, data any) {
	ev := Event{Type: eventType, Data: data, Timestamp: b.Now()}

	b.mu.Lock()
	if b.historyCap > 0 {
		b.history = append(b.history, ev)
		if len(b.history) > b.historyCap {
			b.history = b.history[len(b.history)-b.historyCap:]
		}
	}
	mws := make([]Middleware, len(b.middleware))
	copy(mws, b.middleware)
	subs := make([]subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, mw := range mws {
		if !mw(ev) {
			return
		}
	}
	for _, s := range subs {
		if !Match(s.pattern, ev.Type) {
			continue
		}
		b.dispatch(s, ev)
	}
}

func (b *Bus) dispatch(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "pattern", s.pattern, "event", ev.Type, "panic", r)
		}
	}()
	s.handler(ev)
}

// History returns a copy of the retained event ring, oldest first.
func (b *Bus) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// Match reports whether topic matches pattern. A pattern ending in a
// "*" segment matches any topic that shares the preceding segments.
func Match(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ":*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(topic, prefix)
	}
	return false
}
