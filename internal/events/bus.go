package events

import (
	"time"

	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Delivery is asynchronous: every subscriber drains its own queue.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// A nil bus is a valid no-op publisher.
// Usage: bus.Publish(StateChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case StateChangedEvent:
		event.Publish(b.dispatcher, e)
	case ProbeCompletedEvent:
		event.Publish(b.dispatcher, e)
	case RemediationStartedEvent:
		event.Publish(b.dispatcher, e)
	case ProcessesKilledEvent:
		event.Publish(b.dispatcher, e)
	case ProcessStartedEvent:
		event.Publish(b.dispatcher, e)
	case ExecutableMissingEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e ProbeCompletedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProbeCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RemediationStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessesKilledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ExecutableMissingEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel bridges callback subscriptions to a channel for
// select-loop consumers such as SSE handlers. Events are dropped when ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// Now formats the current time the way every event Timestamp is written.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
