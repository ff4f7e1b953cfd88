// Package events carries booking-session notices to in-process listeners.
package events

import (
	"sync"
	"time"

	"edengolf/internal/models"
)

const (
	// SelectionInvalidated fires when a chosen tee time got booked by someone else.
	SelectionInvalidated = "selection.invalidated"
	// CaddyDropped fires when chosen caddies stopped being candidates.
	CaddyDropped = "caddy.dropped"
	// AvailabilityStale fires when a refresh failed and the last known sheet is shown.
	AvailabilityStale = "availability.stale"
)

// Event is a notice raised by a booking session.
type Event struct {
	Type      string
	SessionID string
	Key       models.SlotKey
	// IDs carries the affected caddy ids, if any.
	IDs       []string
	Notice    string
	CreatedAt time.Time
}

// EventHandler receives session notices of one type.
type EventHandler func(event Event)

// EventBus routes session notices by type. Listeners are registered once at
// startup; sessions publish from their poll callbacks.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[string][]EventHandler
}

// NewEventBus returns a bus with no listeners.
func NewEventBus() *EventBus {
	return &EventBus{listeners: make(map[string][]EventHandler)}
}

// Subscribe adds handler for notices of eventType.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	b.listeners[eventType] = append(b.listeners[eventType], handler)
	b.mu.Unlock()
}

// Publish stamps the notice and hands it to every listener of its type in the
// caller's goroutine. Handlers must not call back into the publishing session. A nil
// bus drops the notice.
func (b *EventBus) Publish(event Event) {
	if b == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	b.mu.RLock()
	listeners := b.listeners[event.Type]
	b.mu.RUnlock()

	for _, listen := range listeners {
		listen(event)
	}
}
