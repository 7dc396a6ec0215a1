// Package model defines the payloads exchanged across the bridge boundary.
package model

import (
	"encoding/json"
	"fmt"
)

// PayloadKind discriminates the Payload variants.
type PayloadKind string

const (
	KindAudio   PayloadKind = "audio"
	KindText    PayloadKind = "text"
	KindJSON    PayloadKind = "json"
	KindBinary  PayloadKind = "binary"
	KindControl PayloadKind = "control"
	KindLog     PayloadKind = "log"
	KindChat    PayloadKind = "chat"
	KindEmpty   PayloadKind = "empty"
)

// Payload is a closed tagged union. The unexported marker keeps the set of
// variants fixed to the types declared in this file.
type Payload interface {
	Kind() PayloadKind
	payload()
}

// Audio carries mono or interleaved float samples.
type Audio struct {
	Samples       []float32 `json:"samples"`
	SampleRate    int       `json:"sample_rate"`
	Channels      int       `json:"channels"`
	ParticipantID string    `json:"participant_id,omitempty"`
	QuestionID    string    `json:"question_id,omitempty"`
}

// Text is a plain UTF-8 string.
type Text string

// JSON is a raw JSON value.
type JSON json.RawMessage

// Binary is an opaque byte buffer.
type Binary []byte

// Control is a named command with free-form parameters.
type Control struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Log is a structured log line produced by a pipeline node.
type Log struct {
	Level       LogLevel          `json:"level"`
	Message     string            `json:"message"`
	NodeID      string            `json:"node_id"`
	TimestampMs int64             `json:"timestamp_ms"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Chat is a (possibly partial) chat message.
type Chat struct {
	Content     string `json:"content"`
	Sender      string `json:"sender"`
	Role        string `json:"role"`
	TimestampMs int64  `json:"timestamp_ms"`
	IsStreaming bool   `json:"is_streaming"`
	SessionID   string `json:"session_id,omitempty"`
}

// Empty carries no data.
type Empty struct{}

func (Audio) Kind() PayloadKind   { return KindAudio }
func (Text) Kind() PayloadKind    { return KindText }
func (JSON) Kind() PayloadKind    { return KindJSON }
func (Binary) Kind() PayloadKind  { return KindBinary }
func (Control) Kind() PayloadKind { return KindControl }
func (Log) Kind() PayloadKind     { return KindLog }
func (Chat) Kind() PayloadKind    { return KindChat }
func (Empty) Kind() PayloadKind   { return KindEmpty }

func (Audio) payload()   {}
func (Text) payload()    {}
func (JSON) payload()    {}
func (Binary) payload()  {}
func (Control) payload() {}
func (Log) payload()     {}
func (Chat) payload()    {}
func (Empty) payload()   {}

// NewJSON marshals v into a JSON payload.
func NewJSON(v any) (JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json payload: %w", err)
	}
	return JSON(raw), nil
}

// Decode unmarshals the JSON payload into v.
func (j JSON) Decode(v any) error {
	return json.Unmarshal(j, v)
}

// MarshalJSON keeps the raw bytes as-is.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// Duration returns the audio length in seconds.
func (a Audio) Duration() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	channels := a.Channels
	if channels <= 0 {
		channels = 1
	}
	return float64(len(a.Samples)/channels) / float64(a.SampleRate)
}

// Describe returns a short human readable summary, used in logs.
func Describe(p Payload) string {
	switch v := p.(type) {
	case Audio:
		return fmt.Sprintf("audio(%d samples @ %dHz)", len(v.Samples), v.SampleRate)
	case Text:
		return fmt.Sprintf("text(%d bytes)", len(v))
	case JSON:
		return fmt.Sprintf("json(%d bytes)", len(v))
	case Binary:
		return fmt.Sprintf("binary(%d bytes)", len(v))
	case Control:
		return "control(" + v.Command + ")"
	case Log:
		return "log(" + string(v.Level) + ")"
	case Chat:
		return fmt.Sprintf("chat(%s, streaming=%t)", v.Sender, v.IsStreaming)
	case Empty:
		return "empty"
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("unknown(%T)", p)
	}
}
