package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/metrics"
	"github.com/normanking/tutorbridge/internal/model"
)

// handler is the per-kind part of a bridge. Every method runs on the
// worker goroutine.
type handler interface {
	// reset clears worker-private state before a new connection.
	reset()
	// flush writes pending outbound queue items to the node.
	flush(node dataflow.Node)
	// handleInput dispatches one pipeline input.
	handleInput(ev dataflow.Event)
}

type worker struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (w *worker) halt() {
	w.once.Do(func() { close(w.stop) })
	<-w.done
}

// base implements the lifecycle shared by every bridge kind.
type base struct {
	kind    Kind
	opts    Options
	inputs  []string
	outputs []string
	logger  zerolog.Logger
	h       handler
	events  *broadcaster

	stateMu sync.RWMutex
	state   State
	lastErr string

	lifeMu sync.Mutex
	w      *worker
}

func newBase(kind Kind, opts Options, inputs, outputs []string) *base {
	logger := opts.Logger.With().
		Str("component", "bridge").
		Str("node", opts.NodeID).
		Logger()
	return &base{
		kind:    kind,
		opts:    opts,
		inputs:  inputs,
		outputs: outputs,
		logger:  logger,
		events:  newBroadcaster(opts.NodeID, opts.SubscriberBuffer, logger),
	}
}

func (b *base) NodeID() string { return b.opts.NodeID }

func (b *base) Kind() Kind { return b.kind }

func (b *base) ExpectedInputs() []string { return append([]string(nil), b.inputs...) }

func (b *base) ExpectedOutputs() []string { return append([]string(nil), b.outputs...) }

func (b *base) Subscribe() *Subscription { return b.events.subscribe() }

func (b *base) State() State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

// LastError is the message recorded when the bridge last entered Error.
func (b *base) LastError() string {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.lastErr
}

func (b *base) setState(s State) {
	b.stateMu.Lock()
	if b.state == s {
		b.stateMu.Unlock()
		return
	}
	b.state = s
	b.stateMu.Unlock()

	metrics.BridgeStateChanges.WithLabelValues(b.opts.NodeID, s.String()).Inc()
	b.logger.Debug().Str("state", s.String()).Msg("Bridge state changed")
	b.emit(Event{Type: EventStateChanged, State: s})
}

func (b *base) fail(msg string) {
	b.stateMu.Lock()
	b.lastErr = msg
	b.stateMu.Unlock()

	b.logger.Error().Str("error", msg).Msg("Bridge worker failed")
	b.setState(StateError)
	b.emit(Event{Type: EventError, Message: msg})
}

func (b *base) emit(ev Event) { b.events.publish(ev) }

func (b *base) connected() bool { return b.State() == StateConnected }

// Connect starts the worker and blocks until it reports Connected or
// Error, or until the connect timeout elapses.
func (b *base) Connect() error {
	b.lifeMu.Lock()
	switch b.State() {
	case StateConnecting, StateConnected, StateDisconnecting:
		b.lifeMu.Unlock()
		return newError(CodeAlreadyConnected, b.opts.NodeID, "", nil)
	}
	if b.w != nil {
		// Reap a worker that already exited on its own.
		b.w.halt()
		b.w = nil
	}
	if b.opts.Dialer == nil {
		b.lifeMu.Unlock()
		return newError(CodeConnectionFailed, b.opts.NodeID, "no dialer configured", nil)
	}

	w := &worker{stop: make(chan struct{}), done: make(chan struct{})}
	b.w = w
	b.setState(StateConnecting)
	go b.run(w)
	b.lifeMu.Unlock()

	b.logger.Info().Msg("Connecting to pipeline")

	deadline := time.Now().Add(b.opts.ConnectTimeout)
	ticker := time.NewTicker(b.opts.ConnectPoll)
	defer ticker.Stop()

	for {
		switch b.State() {
		case StateConnected:
			return nil
		case StateError:
			return newError(CodeConnectionFailed, b.opts.NodeID, b.LastError(), nil)
		case StateDisconnected:
			return newError(CodeConnectionFailed, b.opts.NodeID, "disconnected while connecting", nil)
		}
		if !time.Now().Before(deadline) {
			b.lifeMu.Lock()
			if b.w == w {
				w.halt()
				b.w = nil
			}
			b.lifeMu.Unlock()

			b.stateMu.Lock()
			b.lastErr = "timeout"
			b.stateMu.Unlock()
			b.setState(StateError)
			b.logger.Warn().Dur("timeout", b.opts.ConnectTimeout).Msg("Connect timed out")
			return newError(CodeConnectionFailed, b.opts.NodeID, "timeout", nil)
		}
		<-ticker.C
	}
}

// Disconnect stops and joins the worker and forces Disconnected.
// Calling it on a disconnected bridge is a no-op.
func (b *base) Disconnect() error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	if b.w == nil {
		if b.State() != StateDisconnected {
			b.setState(StateDisconnected)
		}
		return nil
	}

	b.setState(StateDisconnecting)
	b.w.halt()
	b.w = nil
	b.setState(StateDisconnected)
	b.emit(Event{Type: EventDisconnected})
	b.logger.Info().Msg("Disconnected from pipeline")
	return nil
}

// Close disconnects and closes every subscription.
func (b *base) Close() error {
	err := b.Disconnect()
	b.events.closeAll()
	return err
}

func (b *base) run(w *worker) {
	defer close(w.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	node, err := b.opts.Dialer.Dial(ctx, dataflow.Registration{
		NodeID:  b.opts.NodeID,
		Inputs:  b.inputs,
		Outputs: b.outputs,
	})
	if err != nil {
		select {
		case <-w.stop:
			// Connect gave up or Disconnect ran; they own the final state.
		default:
			b.fail(fmt.Sprintf("dial: %v", err))
		}
		return
	}
	defer func() {
		if err := node.Close(); err != nil {
			b.logger.Debug().Err(err).Msg("Node close failed")
		}
	}()

	b.h.reset()
	b.setState(StateConnected)
	b.emit(Event{Type: EventConnected})
	b.logger.Info().Strs("inputs", b.inputs).Strs("outputs", b.outputs).Msg("Connected to pipeline")

	for {
		select {
		case <-w.stop:
			return
		default:
		}

		b.h.flush(node)

		ev, err := node.Recv(b.opts.RecvTimeout)
		if err != nil {
			if errors.Is(err, dataflow.ErrTimeout) {
				continue
			}
			select {
			case <-w.stop:
				return
			default:
			}
			b.fail(newError(CodeReceiveFailed, b.opts.NodeID, "", err).Error())
			return
		}

		switch ev.Type {
		case dataflow.EventInput:
			metrics.BridgeInputs.WithLabelValues(b.opts.NodeID, ev.ID).Inc()
			b.h.handleInput(ev)
		case dataflow.EventInputClosed:
			b.logger.Debug().Str("input", ev.ID).Msg("Input closed")
		case dataflow.EventStop:
			b.logger.Info().Msg("Pipeline requested stop")
			b.setState(StateDisconnected)
			b.emit(Event{Type: EventDisconnected})
			return
		case dataflow.EventError:
			msg := "pipeline error"
			if ev.Err != nil {
				msg = ev.Err.Error()
			}
			b.fail(msg)
			return
		}
	}
}

// write sends one output and reports failures as Error events without
// ending the worker.
func (b *base) write(node dataflow.Node, output string, data dataflow.Data, params dataflow.Params) {
	if err := node.Send(output, data, params); err != nil {
		e := newError(CodeSendFailed, b.opts.NodeID, output, err)
		b.logger.Warn().Err(err).Str("output", output).Msg("Send to pipeline failed")
		b.emit(Event{Type: EventError, Message: e.Error()})
		return
	}
	metrics.BridgeOutputs.WithLabelValues(b.opts.NodeID, output).Inc()
}

// enqueue pushes onto q from a UI thread. Drops are logged and swallowed;
// backpressure timeouts are returned.
func enqueue[T any](b *base, q *Queue[T], v T) error {
	if !b.connected() {
		return newError(CodeNotConnected, b.opts.NodeID, "", nil)
	}
	err := q.Push(v)
	if errors.Is(err, ErrQueueFull) {
		b.logger.Warn().Str("queue", q.Name()).Msg("Queue full, dropping item")
		return nil
	}
	return err
}

func (b *base) unknownOutput(output string, p model.Payload) error {
	if !b.connected() {
		return newError(CodeNotConnected, b.opts.NodeID, "", nil)
	}
	b.logger.Warn().
		Str("output", output).
		Str("payload", model.Describe(p)).
		Msg("Unknown output")
	return nil
}

func (b *base) malformed(ev dataflow.Event, err error) {
	metrics.MalformedInputs.WithLabelValues(b.opts.NodeID, ev.ID).Inc()
	b.logger.Warn().Err(err).Str("input", ev.ID).Msg("Dropping malformed input")
}

// received emits a DataReceived event for a generic input.
func (b *base) received(ev dataflow.Event) {
	meta := ev.Params.Metadata()
	p, err := payloadFromWire(ev.Data, meta)
	if err != nil {
		b.malformed(ev, err)
		return
	}
	b.emit(Event{Type: EventDataReceived, InputID: ev.ID, Payload: p, Metadata: meta})
}
