package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishPreservesOrder(t *testing.T) {
	b := NewEventBus()

	var got []int
	b.Subscribe(EventTypeChatMessage, func(e Event) {
		got = append(got, e.Data["n"].(int))
	})

	for i := 0; i < 50; i++ {
		b.Publish(Event{Type: EventTypeChatMessage, Data: map[string]any{"n": i}})
	}

	require.Len(t, got, 50)
	for i, n := range got {
		assert.Equal(t, i, n)
	}
}

func TestPublishOnlyMatchingType(t *testing.T) {
	b := NewEventBus()

	logs := 0
	b.Subscribe(EventTypeLogEntry, func(Event) { logs++ })
	b.Publish(Event{Type: EventTypeChatMessage})
	b.Publish(Event{Type: EventTypeLogEntry})

	assert.Equal(t, 1, logs)
}

func TestUnsubscribe(t *testing.T) {
	b := NewEventBus()

	first, second := 0, 0
	cancel := b.Subscribe(EventTypeAudioLevel, func(Event) { first++ })
	b.Subscribe(EventTypeAudioLevel, func(Event) { second++ })
	assert.Equal(t, 2, b.HandlerCount(EventTypeAudioLevel))

	cancel()
	cancel()
	b.Publish(Event{Type: EventTypeAudioLevel})

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 1, b.HandlerCount(EventTypeAudioLevel))
}

func TestSubscribeMultiple(t *testing.T) {
	b := NewEventBus()

	var seen []EventType
	cancel := b.SubscribeMultiple([]EventType{EventTypeCaptureStarted, EventTypeCaptureStopped}, func(e Event) {
		seen = append(seen, e.Type)
	})
	b.Publish(Event{Type: EventTypeCaptureStarted})
	b.Publish(Event{Type: EventTypeCaptureStopped})
	cancel()
	b.Publish(Event{Type: EventTypeCaptureStarted})

	assert.Equal(t, []EventType{EventTypeCaptureStarted, EventTypeCaptureStopped}, seen)
}

func TestClear(t *testing.T) {
	b := NewEventBus()
	b.Subscribe(EventTypeBridgeState, func(Event) {})
	b.Clear()
	assert.Equal(t, 0, b.HandlerCount(EventTypeBridgeState))
}
