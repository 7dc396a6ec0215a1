// Package dataflow speaks the pipeline protocol: a dynamic node registers
// with the pipeline under a fixed id, receives typed inputs and emits typed
// outputs.
package dataflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/normanking/tutorbridge/internal/model"
)

var (
	ErrTimeout         = errors.New("dataflow: receive timeout")
	ErrClosed          = errors.New("dataflow: node closed")
	ErrUnknownOutput   = errors.New("dataflow: output not declared")
	ErrUnsupportedData = errors.New("dataflow: unsupported data shape")
	ErrDuplicateNode   = errors.New("dataflow: node id already registered")
	ErrBackpressure    = errors.New("dataflow: downstream input full")
)

// DataKind names the three shapes a payload takes on the wire.
type DataKind string

const (
	DataBytes  DataKind = "bytes"
	DataString DataKind = "string"
	DataFloats DataKind = "floats"
)

// Data is one wire value.
type Data struct {
	Kind   DataKind
	Bytes  []byte
	Str    string
	Floats []float32
}

// Bytes wraps a raw buffer.
func Bytes(b []byte) Data { return Data{Kind: DataBytes, Bytes: b} }

// String wraps a UTF-8 string.
func String(s string) Data { return Data{Kind: DataString, Str: s} }

// Floats wraps an audio buffer.
func Floats(f []float32) Data { return Data{Kind: DataFloats, Floats: f} }

// Validate rejects unknown shapes.
func (d Data) Validate() error {
	switch d.Kind {
	case DataBytes, DataString, DataFloats:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedData, d.Kind)
	}
}

// Text returns the data as a string when it is textual.
func (d Data) Text() (string, bool) {
	switch d.Kind {
	case DataString:
		return d.Str, true
	case DataBytes:
		return string(d.Bytes), true
	}
	return "", false
}

// Params is the string-keyed parameter map that travels with data.
type Params map[string]any

// Metadata collapses every value to its string form, in sorted key order.
func (p Params) Metadata() model.Metadata {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]model.Pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, model.Pair{Key: k, Value: paramString(p[k])})
	}
	return model.NewMetadata(pairs...)
}

func paramString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}

// EventType discriminates pipeline events.
type EventType int

const (
	EventInput EventType = iota
	EventInputClosed
	EventStop
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventInput:
		return "input"
	case EventInputClosed:
		return "input_closed"
	case EventStop:
		return "stop"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one item received from the pipeline.
type Event struct {
	Type   EventType
	ID     string
	Data   Data
	Params Params
	Err    error
}

// Registration describes a dynamic node.
type Registration struct {
	NodeID  string
	Inputs  []string
	Outputs []string
}

// HasOutput reports whether id was declared.
func (r Registration) HasOutput(id string) bool {
	for _, o := range r.Outputs {
		if o == id {
			return true
		}
	}
	return false
}

// Node is a registered pipeline participant.
type Node interface {
	ID() string
	// Recv waits up to timeout for the next event and returns ErrTimeout
	// when nothing arrived.
	Recv(timeout time.Duration) (Event, error)
	Send(outputID string, data Data, params Params) error
	Close() error
}

// Dialer registers dynamic nodes with a pipeline.
type Dialer interface {
	Dial(ctx context.Context, reg Registration) (Node, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, reg Registration) (Node, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, reg Registration) (Node, error) {
	return f(ctx, reg)
}
