package bridge

import (
	"errors"
	"time"

	"github.com/normanking/tutorbridge/internal/metrics"
)

// Policy decides what a full queue does with a new item.
type Policy string

const (
	// PolicyDrop discards the newest item and never blocks.
	PolicyDrop Policy = "drop"
	// PolicyBlock waits for space up to BlockTimeout.
	PolicyBlock Policy = "block"
)

// ErrQueueFull reports that an item was dropped under PolicyDrop.
var ErrQueueFull = errors.New("queue full, item dropped")

// Queue names.
const (
	QueueAudio    = "audio"
	QueueText     = "text"
	QueueControl  = "control"
	QueueEvents   = "events"
	QueueChat     = "chat"
	QueueLog      = "log"
	QueuePlayback = "playback"
	QueuePrompt   = "prompt"
)

// QueueConfig sizes a queue and picks its overflow policy.
type QueueConfig struct {
	Size         int
	Policy       Policy
	BlockTimeout time.Duration
}

// DefaultQueues: high-rate and UI-bound streams are lossy, low-rate
// commands apply backpressure.
func DefaultQueues() map[string]QueueConfig {
	return map[string]QueueConfig{
		QueueAudio:    {Size: 64, Policy: PolicyDrop},
		QueueText:     {Size: 32, Policy: PolicyBlock, BlockTimeout: 2 * time.Second},
		QueueControl:  {Size: 16, Policy: PolicyBlock, BlockTimeout: 2 * time.Second},
		QueueEvents:   {Size: 256, Policy: PolicyDrop},
		QueueChat:     {Size: 256, Policy: PolicyDrop},
		QueueLog:      {Size: 1024, Policy: PolicyDrop},
		QueuePlayback: {Size: 64, Policy: PolicyDrop},
		QueuePrompt:   {Size: 16, Policy: PolicyBlock, BlockTimeout: 2 * time.Second},
	}
}

// Queue is a bounded FIFO with a configurable overflow policy.
type Queue[T any] struct {
	node string
	name string
	cfg  QueueConfig
	ch   chan T
}

// NewQueue creates a queue for node named name.
func NewQueue[T any](node, name string, cfg QueueConfig) *Queue[T] {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyDrop
	}
	if cfg.Policy == PolicyBlock && cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 2 * time.Second
	}
	return &Queue[T]{node: node, name: name, cfg: cfg, ch: make(chan T, cfg.Size)}
}

// Push enqueues v. Under PolicyDrop a full queue returns ErrQueueFull at
// once; under PolicyBlock it waits and returns ErrChannelSend on timeout.
func (q *Queue[T]) Push(v T) error {
	select {
	case q.ch <- v:
		return nil
	default:
	}

	if q.cfg.Policy != PolicyBlock {
		metrics.QueueDropped.WithLabelValues(q.node, q.name).Inc()
		return ErrQueueFull
	}

	timer := time.NewTimer(q.cfg.BlockTimeout)
	defer timer.Stop()
	select {
	case q.ch <- v:
		return nil
	case <-timer.C:
		metrics.QueueDropped.WithLabelValues(q.node, q.name).Inc()
		return newError(CodeChannelSend, q.node, q.name+" queue full", nil)
	}
}

// TryPop returns the next item without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Pop waits up to timeout for an item.
func (q *Queue[T]) Pop(timeout time.Duration) (T, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-q.ch:
		return v, nil
	case <-timer.C:
		var zero T
		return zero, newError(CodeChannelReceive, q.node, q.name+" queue empty", nil)
	}
}

// C exposes the receive side for select loops.
func (q *Queue[T]) C() <-chan T { return q.ch }

// Len is the number of buffered items.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Name returns the queue name.
func (q *Queue[T]) Name() string { return q.name }

// Policy returns the overflow policy.
func (q *Queue[T]) Policy() Policy { return q.cfg.Policy }

// Drain discards every buffered item.
func (q *Queue[T]) Drain() int {
	n := 0
	for {
		if _, ok := q.TryPop(); !ok {
			return n
		}
		n++
	}
}
