// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

const (
	// Bridge lifecycle
	EventTypeBridgeState EventType = "bridge.state_changed"
	EventTypeBridgeError EventType = "bridge.error"
	EventTypeBridgeData  EventType = "bridge.data"

	// Conversation and logs
	EventTypeChatMessage EventType = "chat.message"
	EventTypeLogEntry    EventType = "log.entry"

	// Audio
	EventTypeCaptureStarted EventType = "audio.capture_started"
	EventTypeCaptureStopped EventType = "audio.capture_stopped"
	EventTypeAudioLevel     EventType = "audio.level"
	EventTypePlayback       EventType = "audio.playback"

	// Session
	EventTypeSessionStatus EventType = "session.status"
)

// Event represents a bus event
type Event struct {
	Type   EventType
	Source string
	Data   map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType][]subscription
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
	}
}

// Subscribe adds a handler for an event type and returns a function that
// removes it.
func (b *EventBus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})
	return func() { b.unsubscribe(eventType, id) }
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) func() {
	cancels := make([]func(), 0, len(eventTypes))
	for _, et := range eventTypes {
		cancels = append(cancels, b.Subscribe(et, handler))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

func (b *EventBus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (b *EventBus) snapshot(eventType EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.handlers[eventType]
	handlers := make([]Handler, len(subs))
	for i, s := range subs {
		handlers[i] = s.handler
	}
	return handlers
}

// Publish calls every handler on the caller's goroutine, in subscription
// order. Events from one publisher therefore arrive in the order sent;
// handlers must not block.
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		handler(event)
	}
}

// HandlerCount reports the handlers registered for eventType.
func (b *EventBus) HandlerCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]subscription)
}
