package model

import "strings"

// Well-known metadata keys.
const (
	MetaSessionStatus = "session_status"
	MetaQuestionID    = "question_id"
	MetaParticipantID = "participant_id"
	MetaSessionID     = "session_id"
	MetaSampleRate    = "sample_rate"
	MetaChannels      = "channels"
	MetaNodeID        = "node_id"
)

// Metadata is an ordered string map attached to every inbound payload.
// Values are built once and copied per event; callers must not mutate a
// Metadata they did not create.
type Metadata struct {
	keys   []string
	values map[string]string
}

// Pair is a single metadata entry.
type Pair struct {
	Key   string
	Value string
}

// NewMetadata builds metadata from pairs, keeping first-seen key order.
// Later duplicates overwrite the value but not the position.
func NewMetadata(pairs ...Pair) Metadata {
	m := Metadata{values: make(map[string]string, len(pairs))}
	for _, p := range pairs {
		if _, ok := m.values[p.Key]; !ok {
			m.keys = append(m.keys, p.Key)
		}
		m.values[p.Key] = p.Value
	}
	return m
}

// Get returns the value for key.
func (m Metadata) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Value returns the value for key or "".
func (m Metadata) Value(key string) string {
	return m.values[key]
}

// Len returns the number of entries.
func (m Metadata) Len() int {
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m Metadata) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Pairs returns the entries in insertion order.
func (m Metadata) Pairs() []Pair {
	out := make([]Pair, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, Pair{Key: k, Value: m.values[k]})
	}
	return out
}

// Clone returns an independent copy.
func (m Metadata) Clone() Metadata {
	return NewMetadata(m.Pairs()...)
}

// With returns a copy with key set to value.
func (m Metadata) With(key, value string) Metadata {
	return NewMetadata(append(m.Pairs(), Pair{Key: key, Value: value})...)
}

// Map returns a plain map copy.
func (m Metadata) Map() map[string]string {
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// SessionDone reports whether session_status marks a finished stream.
func (m Metadata) SessionDone() bool {
	switch strings.ToLower(strings.TrimSpace(m.values[MetaSessionStatus])) {
	case "ended", "complete":
		return true
	}
	return false
}
