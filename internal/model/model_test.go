package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_PreservesInsertionOrder(t *testing.T) {
	m := NewMetadata(
		Pair{Key: MetaSessionStatus, Value: "streaming"},
		Pair{Key: MetaQuestionID, Value: "q1"},
		Pair{Key: MetaSessionStatus, Value: "ended"},
	)

	assert.Equal(t, []string{MetaSessionStatus, MetaQuestionID}, m.Keys())
	assert.Equal(t, "ended", m.Value(MetaSessionStatus))
	assert.Equal(t, 2, m.Len())
}

func TestMetadata_CloneIsIndependent(t *testing.T) {
	m := NewMetadata(Pair{Key: "a", Value: "1"})
	c := m.With("b", "2")

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, c.Len())
	_, ok := m.Get("b")
	assert.False(t, ok)
}

func TestMetadata_SessionDone(t *testing.T) {
	tests := []struct {
		status string
		done   bool
	}{
		{"ended", true},
		{"complete", true},
		{"Ended", true},
		{"streaming", false},
		{"", false},
	}
	for _, tc := range tests {
		m := NewMetadata(Pair{Key: MetaSessionStatus, Value: tc.status})
		assert.Equal(t, tc.done, m.SessionDone(), "status %q", tc.status)
	}
}

func TestPayload_KindsAreDistinct(t *testing.T) {
	payloads := []Payload{Audio{}, Text(""), JSON(nil), Binary(nil), Control{}, Log{}, Chat{}, Empty{}}
	seen := map[PayloadKind]bool{}
	for _, p := range payloads {
		assert.False(t, seen[p.Kind()], "duplicate kind %s", p.Kind())
		seen[p.Kind()] = true
	}
	assert.Len(t, seen, 8)
}

func TestJSON_DecodeRoundTrip(t *testing.T) {
	j, err := NewJSON(map[string]any{"command": "start"})
	require.NoError(t, err)

	var got struct {
		Command string `json:"command"`
	}
	require.NoError(t, j.Decode(&got))
	assert.Equal(t, "start", got.Command)
}

func TestAudio_Duration(t *testing.T) {
	a := Audio{Samples: make([]float32, 1600), SampleRate: 16000, Channels: 1}
	assert.InDelta(t, 0.1, a.Duration(), 1e-9)
	assert.Zero(t, Audio{}.Duration())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLogLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLogLevel("error"))
	assert.Equal(t, LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LevelInfo, ParseLogLevel("whatever"))
	assert.Less(t, LevelInfo.Rank(), LevelWarn.Rank())
}
