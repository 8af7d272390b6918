package event

import (
	"fmt"
	"log"
	"runtime/debug"
	"slices"
	"strconv"
	"sync"
)

// Handler is a function that handles an event.
type Handler func(Event)

// PanicFunc receives a recovered handler panic with its stack.
type PanicFunc func(eventType string, recovered any, stack []byte)

// allEvents is the topic of SubscribeAll subscriptions.
const allEvents = "*"

type subscription struct {
	id      string
	topic   string
	handler Handler
}

// Bus is a synchronous pub-sub event bus. Handlers run on the publishing
// goroutine, so a handler that blocks stalls the publisher.
type Bus struct {
	mu      sync.RWMutex
	subs    []subscription // Registration order
	nextID  uint64
	onPanic PanicFunc
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithPanicHandler routes recovered handler panics to fn instead of the
// standard logger.
func WithPanicHandler(fn PanicFunc) BusOption {
	return func(b *Bus) {
		if fn != nil {
			b.onPanic = fn
		}
	}
}

// NewBus creates a new event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		onPanic: func(eventType string, r any, stack []byte) {
			log.Printf("ERROR: event handler panicked for event %s: %v\n%s", eventType, r, stack)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a specific event type.
// Returns a subscription ID that can be used to unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := "sub-" + strconv.FormatUint(b.nextID, 10)
	b.subs = append(b.subs, subscription{id: id, topic: eventType, handler: handler})
	return id
}

// SubscribeFunc registers a typed handler for events of type T published
// under eventType. Events of any other Go type are ignored.
func SubscribeFunc[T Event](b *Bus, eventType string, fn func(T)) string {
	return b.Subscribe(eventType, func(e Event) {
		if typed, ok := e.(T); ok {
			fn(typed)
		}
	})
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(allEvents, handler)
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.IndexFunc(b.subs, func(s subscription) bool { return s.id == id })
	if i < 0 {
		return false
	}
	b.subs = slices.Delete(b.subs, i, i+1)
	return true
}

// Publish delivers event to the handlers subscribed to its type, then to
// SubscribeAll handlers, each group in registration order. A panicking
// handler is recovered and reported; delivery continues.
func (b *Bus) Publish(event Event) {
	eventType := event.EventType()

	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.topic == eventType {
			targets = append(targets, s.handler)
		}
	}
	for _, s := range b.subs {
		if s.topic == allEvents {
			targets = append(targets, s.handler)
		}
	}
	onPanic := b.onPanic
	b.mu.RUnlock()

	for _, h := range targets {
		deliver(h, event, onPanic)
	}
}

func deliver(h Handler, event Event, onPanic PanicFunc) {
	defer func() {
		if r := recover(); r != nil {
			onPanic(event.EventType(), r, debug.Stack())
		}
	}()
	h(event)
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// String summarizes the bus for debugging.
func (b *Bus) String() string {
	return fmt.Sprintf("event.Bus{subscriptions: %d}", b.SubscriptionCount())
}
