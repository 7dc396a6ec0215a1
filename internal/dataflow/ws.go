package dataflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/metrics"
)

// Frame is the JSON message exchanged with the pipeline daemon.
type Frame struct {
	Type     string         `json:"type"`
	NodeID   string         `json:"node_id,omitempty"`
	Inputs   []string       `json:"inputs,omitempty"`
	Outputs  []string       `json:"outputs,omitempty"`
	ID       string         `json:"id,omitempty"`
	Encoding DataKind       `json:"encoding,omitempty"`
	Bytes    []byte         `json:"bytes,omitempty"`
	Text     string         `json:"text,omitempty"`
	Floats   []float32      `json:"floats,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// Frame types.
const (
	FrameRegister    = "register"
	FrameRegistered  = "registered"
	FrameInput       = "input"
	FrameInputClosed = "input_closed"
	FrameOutput      = "output"
	FrameStop        = "stop"
	FrameError       = "error"
)

// FrameData builds the data fields of a frame.
func FrameData(f *Frame, d Data) {
	f.Encoding = d.Kind
	switch d.Kind {
	case DataBytes:
		f.Bytes = d.Bytes
	case DataString:
		f.Text = d.Str
	case DataFloats:
		f.Floats = d.Floats
	}
}

// Data extracts the wire value carried by an input or output frame.
func (f Frame) Data() (Data, error) {
	switch f.Encoding {
	case DataBytes:
		return Bytes(f.Bytes), nil
	case DataString:
		return String(f.Text), nil
	case DataFloats:
		return Floats(f.Floats), nil
	default:
		return Data{}, fmt.Errorf("%w: %q", ErrUnsupportedData, f.Encoding)
	}
}

// WSDialer registers nodes with a pipeline daemon over WebSocket.
type WSDialer struct {
	URL              string
	HandshakeTimeout time.Duration
	Buffer           int
	Logger           zerolog.Logger
}

// NewWSDialer creates a dialer for the daemon at rawURL (http, https, ws or wss).
func NewWSDialer(rawURL string, logger zerolog.Logger) *WSDialer {
	return &WSDialer{
		URL:              rawURL,
		HandshakeTimeout: 5 * time.Second,
		Buffer:           256,
		Logger:           logger.With().Str("component", "dataflow-ws").Logger(),
	}
}

// Dial connects, registers and starts the read loop.
func (d *WSDialer) Dial(ctx context.Context, reg Registration) (Node, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("node", reg.NodeID)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	if err := conn.WriteJSON(Frame{Type: FrameRegister, NodeID: reg.NodeID, Inputs: reg.Inputs, Outputs: reg.Outputs}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register: %w", err)
	}

	deadline := time.Now().Add(d.HandshakeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetReadDeadline(deadline)
	var ack Frame
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read registration ack: %w", err)
	}
	if ack.Type == FrameError {
		conn.Close()
		return nil, fmt.Errorf("registration rejected: %s", ack.Message)
	}
	if ack.Type != FrameRegistered {
		conn.Close()
		return nil, fmt.Errorf("unexpected registration reply %q", ack.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	buffer := d.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	n := &wsNode{
		reg:    reg,
		conn:   conn,
		events: make(chan Event, buffer),
		closed: make(chan struct{}),
		logger: d.Logger.With().Str("node", reg.NodeID).Logger(),
	}
	go n.readLoop()

	n.logger.Info().Str("url", u.String()).Msg("Registered with pipeline")
	return n, nil
}

type wsNode struct {
	reg    Registration
	conn   *websocket.Conn
	events chan Event
	logger zerolog.Logger

	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

func (n *wsNode) ID() string { return n.reg.NodeID }

func (n *wsNode) Recv(timeout time.Duration) (Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev, ok := <-n.events:
		if !ok {
			return Event{}, ErrClosed
		}
		return ev, nil
	case <-n.closed:
		return Event{}, ErrClosed
	case <-timer.C:
		return Event{}, ErrTimeout
	}
}

func (n *wsNode) Send(outputID string, data Data, params Params) error {
	if !n.reg.HasOutput(outputID) {
		return fmt.Errorf("%w: %s/%s", ErrUnknownOutput, n.reg.NodeID, outputID)
	}
	if err := data.Validate(); err != nil {
		return err
	}

	f := Frame{Type: FrameOutput, ID: outputID, Params: params}
	FrameData(&f, data)

	n.writeMu.Lock()
	defer n.writeMu.Unlock()
	select {
	case <-n.closed:
		return ErrClosed
	default:
	}
	if err := n.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write output %s: %w", outputID, err)
	}
	return nil
}

func (n *wsNode) Close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.closed)
		n.writeMu.Lock()
		_ = n.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		n.writeMu.Unlock()
		err = n.conn.Close()
	})
	return err
}

func (n *wsNode) readLoop() {
	defer close(n.events)

	for {
		_, raw, err := n.conn.ReadMessage()
		if err != nil {
			select {
			case <-n.closed:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				n.emit(Event{Type: EventStop})
				return
			}
			n.emit(Event{Type: EventError, Err: fmt.Errorf("read: %w", err)})
			return
		}

		// A frame that does not decode is dropped; the socket stays up.
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			metrics.MalformedInputs.WithLabelValues(n.reg.NodeID, "frame").Inc()
			n.logger.Warn().Err(err).Int("bytes", len(raw)).Msg("Dropping undecodable frame")
			continue
		}

		switch f.Type {
		case FrameInput:
			data, err := f.Data()
			if err != nil {
				metrics.MalformedInputs.WithLabelValues(n.reg.NodeID, f.ID).Inc()
				n.logger.Warn().Err(err).Str("input", f.ID).Msg("Dropping malformed input frame")
				continue
			}
			if !n.emit(Event{Type: EventInput, ID: f.ID, Data: data, Params: f.Params}) {
				return
			}
		case FrameInputClosed:
			if !n.emit(Event{Type: EventInputClosed, ID: f.ID}) {
				return
			}
		case FrameStop:
			n.emit(Event{Type: EventStop})
			return
		case FrameError:
			n.emit(Event{Type: EventError, Err: errors.New(f.Message)})
		default:
			n.logger.Debug().Str("type", f.Type).Msg("Unknown frame type")
		}
	}
}

func (n *wsNode) emit(ev Event) bool {
	select {
	case n.events <- ev:
		return true
	case <-n.closed:
		return false
	}
}
