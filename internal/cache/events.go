package cache

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// EventKind names a cache event.
type EventKind string

const (
	EventSet     EventKind = "set"
	EventDelete  EventKind = "delete"
	EventClear   EventKind = "clear"
	EventExpired EventKind = "expired"
	EventEvict   EventKind = "evict"
	EventError   EventKind = "error"
)

// AllEvents lists every event kind in a stable order.
var AllEvents = []EventKind{EventSet, EventDelete, EventClear, EventExpired, EventEvict, EventError}

// Event is delivered to listeners after the operation that produced it.
type Event struct {
	Kind  EventKind `json:"kind"`
	Cache string    `json:"cache"`
	Key   string    `json:"key,omitempty"`
	Value any       `json:"-"`
	Err   error     `json:"-"`
	Time  time.Time `json:"time"`
}

// Listener receives cache events. Listeners run synchronously on the
// goroutine that performed the operation, outside the cache lock.
type Listener func(Event)

type subscription struct {
	id uint64
	fn Listener
}

// notifier keeps listeners per event kind in registration order.
// Slices are copied on write so emit can iterate a snapshot without locking.
type notifier struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventKind][]subscription
	log    *slog.Logger
}

func newNotifier(log *slog.Logger) *notifier {
	return &notifier{
		subs: make(map[EventKind][]subscription),
		log:  log,
	}
}

func (n *notifier) on(kind EventKind, fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs[kind] = append(slices.Clip(n.subs[kind]), subscription{id: id, fn: fn})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.off(kind, id) })
	}
}

func (n *notifier) off(kind EventKind, id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	current := n.subs[kind]
	next := make([]subscription, 0, len(current))
	for _, s := range current {
		if s.id != id {
			next = append(next, s)
		}
	}
	n.subs[kind] = next
}

func (n *notifier) emit(ev Event) {
	n.mu.RLock()
	subs := n.subs[ev.Kind]
	n.mu.RUnlock()
	for _, s := range subs {
		n.call(s.fn, ev)
	}
}

// call isolates a listener failure from the cache operation.
func (n *notifier) call(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("Cache listener panicked",
				"cache", ev.Cache,
				"event", string(ev.Kind),
				"key", ev.Key,
				"panic", r,
			)
		}
	}()
	fn(ev)
}
