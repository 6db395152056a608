package testhelpers

import (
	"context"
	"sync"

	"casino/events"
)

// EventRecorder is a synchronous events.Emitter that keeps what it receives
type EventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *EventRecorder) Emit(_ context.Context, event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns everything emitted so far
func (r *EventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the emitted events of one type in order
func (r *EventRecorder) OfType(eventType events.EventType) []events.Event {
	var out []events.Event
	for _, event := range r.Events() {
		if event.Type() == eventType {
			out = append(out, event)
		}
	}
	return out
}

// Reset forgets every recorded event
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
