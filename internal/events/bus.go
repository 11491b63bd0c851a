package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers. Publishing on a nil bus
// is a no-op.
// Usage: bus.Publish(StreamingStartedEvent{...})
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case StreamingStartedEvent:
		event.Publish(b.dispatcher, e)
	case StreamingStoppedEvent:
		event.Publish(b.dispatcher, e)
	case StreamingFailedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingCreatedEvent:
		event.Publish(b.dispatcher, e)
	case SaveTriggeredEvent:
		event.Publish(b.dispatcher, e)
	case DevicesChangedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceUpdatedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceLogEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e DevicesChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StreamingStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamingStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamingFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingCreatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SaveTriggeredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DevicesChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceUpdatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceLogEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
