package transmit

import (
	"log/slog"
	"sync"
)

// EventKind identifies a lifecycle event.
type EventKind uint8

// Lifecycle event kinds.
const (
	EventConnect EventKind = iota + 1
	EventDisconnect
	EventSubscribe
	EventUnsubscribe
	EventBroadcast
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventSubscribe:
		return "subscribe"
	case EventUnsubscribe:
		return "unsubscribe"
	case EventBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification. Which fields are set depends on Kind:
// connect and disconnect carry UID; subscribe and unsubscribe carry UID and
// Channel; broadcast carries Channel and Payload.
type Event struct {
	Kind    EventKind
	UID     string
	Channel string
	Payload Payload
}

// Listener receives lifecycle events. Listeners run synchronously in the
// goroutine that triggered the event.
type Listener func(Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

// hooks is an observer registry keyed by event kind.
type hooks struct {
	mu        sync.RWMutex
	listeners map[EventKind][]listenerEntry
	nextID    uint64
	logger    *slog.Logger
}

func newHooks(logger *slog.Logger) *hooks {
	return &hooks{
		listeners: make(map[EventKind][]listenerEntry),
		logger:    logger,
	}
}

// on appends a listener and returns a function that removes it.
func (h *hooks) on(kind EventKind, fn Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.listeners[kind] = append(h.listeners[kind], listenerEntry{id: id, fn: fn})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		entries := h.listeners[kind]
		for i, e := range entries {
			if e.id == id {
				h.listeners[kind] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// emit calls every listener for the event's kind in registration order.
// A panicking listener is logged and does not stop the remaining ones.
func (h *hooks) emit(ev Event) {
	h.mu.RLock()
	entries := h.listeners[ev.Kind]
	h.mu.RUnlock()

	for _, e := range entries {
		h.call(e.fn, ev)
	}
}

func (h *hooks) call(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("lifecycle listener panicked",
				slog.String("event", ev.Kind.String()),
				slog.String("uid", ev.UID),
				slog.String("channel", ev.Channel),
				slog.Any("panic", r))
		}
	}()
	fn(ev)
}
