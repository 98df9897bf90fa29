package authclient

import "sync"

// EventType identifies a session lifecycle notification.
type EventType string

const (
	// EventTokenRefreshed fires after a refresh settles successfully and
	// the new pair has been stored.
	EventTokenRefreshed EventType = "token_refreshed"

	// EventSessionExpired fires when a refresh fails terminally and the
	// session state has been cleared; subscribers should present a
	// logged-out state (e.g. redirect to login).
	EventSessionExpired EventType = "session_expired"

	// EventSessionCleared fires on an explicit Clear or Logout.
	EventSessionCleared EventType = "session_cleared"
)

// Event carries the notification type plus a snapshot of the session as
// it stood right after the transition.
type Event struct {
	Type    EventType
	Session Session
}

// eventBus is a minimal typed subscriber registry. Subscriptions are
// identified by an opaque id so unsubscription is explicit; handlers run
// synchronously on the goroutine that triggered the transition.
type eventBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(Event)
}

func newEventBus() *eventBus {
	return &eventBus{handlers: make(map[int]func(Event))}
}

func (b *eventBus) subscribe(handler func(Event)) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[b.nextID] = handler
	return b.nextID
}

func (b *eventBus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, id)
}

func (b *eventBus) publish(event Event) {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.handlers))
	for _, handler := range b.handlers {
		handlers = append(handlers, handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
