// Package ui connects the bridges to the desktop frontend: a Relay moves
// bridge output onto the event bus and a Binder exposes it to Wails.
package ui

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/bridge"
	"github.com/normanking/tutorbridge/internal/bus"
	"github.com/normanking/tutorbridge/internal/model"
)

// Relay pumps bridge subscriptions and pull queues onto the event bus.
// Each source gets one goroutine so per-source order is kept.
type Relay struct {
	bus    *bus.EventBus
	logger zerolog.Logger

	mu     sync.Mutex
	subs   []*bridge.Subscription
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewRelay creates a relay publishing to eventBus.
func NewRelay(eventBus *bus.EventBus, logger zerolog.Logger) *Relay {
	return &Relay{
		bus:    eventBus,
		logger: logger.With().Str("component", "ui-relay").Logger(),
		done:   make(chan struct{}),
	}
}

// Attach relays b's lifecycle, error and generic data events.
func (r *Relay) Attach(b bridge.Bridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	sub := b.Subscribe()
	r.subs = append(r.subs, sub)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for ev := range sub.Events() {
			r.relay(b, ev)
		}
	}()
}

// Chat relays completed and streaming chat messages from node.
func (r *Relay) Chat(node string, ch <-chan model.ChatMessage) {
	pump(r, ch, func(m model.ChatMessage) bus.Event {
		return bus.Event{Type: bus.EventTypeChatMessage, Source: node, Data: map[string]any{"message": m}}
	})
}

// Logs relays pipeline log entries from node.
func (r *Relay) Logs(node string, ch <-chan model.LogEntry) {
	pump(r, ch, func(e model.LogEntry) bus.Event {
		return bus.Event{Type: bus.EventTypeLogEntry, Source: node, Data: map[string]any{"entry": e}}
	})
}

// Playback relays synthesized audio from node.
func (r *Relay) Playback(node string, ch <-chan model.Audio) {
	pump(r, ch, func(a model.Audio) bus.Event {
		return bus.Event{Type: bus.EventTypePlayback, Source: node, Data: map[string]any{
			"samples":     a.Samples,
			"sample_rate": a.SampleRate,
			"channels":    a.Channels,
			"duration":    a.Duration(),
		}}
	})
}

func pump[T any](r *Relay, ch <-chan T, event func(T) bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.done:
				return
			case v := <-ch:
				r.bus.Publish(event(v))
			}
		}
	}()
}

func (r *Relay) relay(b bridge.Bridge, ev bridge.Event) {
	node := b.NodeID()
	switch ev.Type {
	case bridge.EventStateChanged:
		r.bus.Publish(bus.Event{Type: bus.EventTypeBridgeState, Source: node, Data: map[string]any{
			"node":  node,
			"kind":  string(b.Kind()),
			"state": ev.State.String(),
		}})
	case bridge.EventError:
		r.bus.Publish(bus.Event{Type: bus.EventTypeBridgeError, Source: node, Data: map[string]any{
			"node":    node,
			"message": ev.Message,
		}})
	case bridge.EventDataReceived:
		r.data(node, ev)
	case bridge.EventConnected, bridge.EventDisconnected:
		// StateChanged already carries these.
	}
}

func (r *Relay) data(node string, ev bridge.Event) {
	switch p := ev.Payload.(type) {
	case model.Chat, model.Log, model.Audio:
		// Delivered through the pull queues.
		return
	case model.JSON:
		if ev.InputID == "status" {
			var status map[string]any
			if err := json.Unmarshal(p, &status); err == nil {
				r.bus.Publish(bus.Event{Type: bus.EventTypeSessionStatus, Source: node, Data: map[string]any{
					"node":   node,
					"status": status,
				}})
				return
			}
		}
	}

	r.bus.Publish(bus.Event{Type: bus.EventTypeBridgeData, Source: node, Data: map[string]any{
		"node":     node,
		"input":    ev.InputID,
		"payload":  model.Describe(ev.Payload),
		"metadata": ev.Metadata.Map(),
	}})
}

// Close stops every relay goroutine.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.done)
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	r.wg.Wait()
}
