package events

import "sync"

// Event represents a structured state change emitted by the sale.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. the gateway feed,
// metrics, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a function into an Emitter.
type EmitterFunc func(Event)

// Emit implements the Emitter interface.
func (f EmitterFunc) Emit(evt Event) {
	if f != nil {
		f(evt)
	}
}

// Buffer collects events until the surrounding call either commits and calls
// Flush, or fails and calls Discard.
type Buffer struct {
	mu      sync.Mutex
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, evt)
	b.mu.Unlock()
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush forwards buffered events to sink in emission order and empties the
// buffer.
func (b *Buffer) Flush(sink Emitter) []Event {
	b.mu.Lock()
	flushed := b.pending
	b.pending = nil
	b.mu.Unlock()
	if sink != nil {
		for _, evt := range flushed {
			sink.Emit(evt)
		}
	}
	return flushed
}

// Discard drops every buffered event.
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
}
