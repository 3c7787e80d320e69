package events

import (
	"sync"

	"github.com/charleschow/cricket-live/internal/telemetry"
)

// Handler processes an event. Returning an error logs it but does not stop dispatch.
type Handler func(Event) error

type registration struct {
	id int
	h  Handler
}

// Bus is a synchronous in-process event bus.
// Subscribers are invoked in registration order on the publisher's goroutine,
// so delivery order equals publish order for a single publisher.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[EventType][]registration
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]registration),
	}
}

// Subscribe registers a handler for a given event type and returns a func
// that removes it. Calling the returned func more than once is a no-op.
func (b *Bus) Subscribe(eventType EventType, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], registration{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(eventType, id) })
	}
}

func (b *Bus) remove(eventType EventType, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.handlers[eventType]
	for i, r := range regs {
		if r.id == id {
			// copy so a Publish iterating the old slice is unaffected
			next := make([]registration, 0, len(regs)-1)
			next = append(next, regs[:i]...)
			next = append(next, regs[i+1:]...)
			b.handlers[eventType] = next
			return
		}
	}
}

// Publish dispatches an event to all registered handlers for its type.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	regs := b.handlers[e.Type]
	b.mu.RUnlock()

	for _, r := range regs {
		if err := r.h(e); err != nil {
			// logged but not fatal, one bad handler shouldn't block others
			telemetry.Debugf("bus: %s handler: %v", e.Type, err)
		}
	}
}

// Count returns how many handlers are registered for an event type.
func (b *Bus) Count(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}
