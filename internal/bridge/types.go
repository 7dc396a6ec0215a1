// Package bridge adapts dynamic pipeline nodes to UI-consumable queues and
// events. Each bridge runs one worker goroutine per connected lifetime that
// owns the pipeline node; the UI talks to it only through bounded queues.
package bridge

import (
	"fmt"

	"github.com/normanking/tutorbridge/internal/model"
)

// Kind is the closed set of bridge kinds.
type Kind string

const (
	KindMicInput    Kind = "mic_input"
	KindTextInput   Kind = "text_input"
	KindSystemLog   Kind = "system_log"
	KindAudioPlayer Kind = "audio_player"
	KindPromptInput Kind = "prompt_input"
)

// Kinds lists every kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindMicInput, KindTextInput, KindSystemLog, KindAudioPlayer, KindPromptInput}
}

// ParseKind validates s.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown bridge kind %q", s)
}

// DefaultNodeID is the dataflow registration id used when none is configured.
func (k Kind) DefaultNodeID() string {
	switch k {
	case KindMicInput:
		return "mic-input"
	case KindTextInput:
		return "text-input"
	case KindSystemLog:
		return "system-log"
	case KindAudioPlayer:
		return "audio-player"
	case KindPromptInput:
		return "prompt-input"
	default:
		return string(k)
	}
}

// State is the bridge lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// EventType discriminates bridge events.
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventDataReceived
	EventError
	EventStateChanged
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventDataReceived:
		return "data"
	case EventError:
		return "error"
	case EventStateChanged:
		return "state"
	default:
		return "unknown"
	}
}

// Event is the only vocabulary the UI observes from a bridge.
type Event struct {
	Type     EventType
	InputID  string
	Payload  model.Payload
	Metadata model.Metadata
	Message  string
	State    State
}

// Bridge is implemented by every bridge kind.
type Bridge interface {
	NodeID() string
	Kind() Kind
	State() State
	Connect() error
	Disconnect() error
	Send(outputID string, payload model.Payload) error
	// Subscribe returns an independent event stream; every subscription
	// receives its own copy of each event. After Close the returned
	// stream is already closed.
	Subscribe() *Subscription
	ExpectedInputs() []string
	ExpectedOutputs() []string
	// Close disconnects and releases every subscription.
	Close() error
}
