package bridge

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/metrics"
)

// Subscription is one consumer's copy of a bridge's event stream.
type Subscription struct {
	ch     chan Event
	parent *broadcaster
	once   sync.Once
}

// Events returns the receive side. It is closed when the subscription or
// the bridge is closed.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close stops delivery to this subscription.
func (s *Subscription) Close() {
	s.once.Do(func() { s.parent.remove(s) })
}

// broadcaster fans every event out to all subscriptions. A slow consumer
// loses events; the publisher never waits.
type broadcaster struct {
	node   string
	buffer int
	logger zerolog.Logger

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func newBroadcaster(node string, buffer int, logger zerolog.Logger) *broadcaster {
	if buffer <= 0 {
		buffer = 256
	}
	return &broadcaster{
		node:   node,
		buffer: buffer,
		logger: logger,
		subs:   make(map[*Subscription]struct{}),
	}
}

// subscribe on a closed broadcaster returns an already-closed subscription.
func (b *broadcaster) subscribe() *Subscription {
	s := &Subscription{ch: make(chan Event, b.buffer), parent: b}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subs {
		e := ev
		e.Metadata = ev.Metadata.Clone()
		select {
		case s.ch <- e:
		default:
			metrics.QueueDropped.WithLabelValues(b.node, QueueEvents).Inc()
			b.logger.Warn().Str("event", ev.Type.String()).Msg("Subscriber queue full, dropping event")
		}
	}
}

func (b *broadcaster) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
