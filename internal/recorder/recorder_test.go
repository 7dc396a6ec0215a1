package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/model"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "transcripts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func input(id, text string, params dataflow.Params) dataflow.Event {
	return dataflow.Event{Type: dataflow.EventInput, ID: id, Data: dataflow.String(text), Params: params}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveMessage(ctx, Message{SessionID: "S1", Sender: "User", Role: "user", Content: "hi", CreatedAt: at}))
	require.NoError(t, s.SaveMessage(ctx, Message{SessionID: "S1", Sender: "Tutor", Role: "assistant", Content: "hello", CreatedAt: at.Add(time.Second)}))
	require.NoError(t, s.SaveMessage(ctx, Message{SessionID: "S2", Sender: "User", Role: "user", Content: "other", CreatedAt: at}))

	msgs, err := s.Messages(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "Tutor", msgs[1].Sender)
	assert.True(t, msgs[0].CreatedAt.Equal(at))
	assert.Less(t, msgs[0].ID, msgs[1].ID)

	require.NoError(t, s.SaveSessionStatus(ctx, StatusChange{SessionID: "S1", State: "active", CreatedAt: at}))
	statuses, err := s.Statuses(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "active", statuses[0].State)

	assert.ErrorIs(t, s.SaveMessage(ctx, Message{Content: "x"}), ErrInvalidSession)
	assert.ErrorIs(t, s.SaveSessionStatus(ctx, StatusChange{State: "idle"}), ErrInvalidSession)

	none, err := s.Messages(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecorderSessionTranscript(t *testing.T) {
	s := newStore(t)
	r := New(s, nil, zerolog.Nop())
	ctx := context.Background()

	r.Handle(input(InputStatus, `{"state":"active","session_id":"S1"}`, nil))
	r.Handle(input(InputUserText, `{"text":"I want go to Paris","session_id":"S1","is_first_in_session":true}`, nil))

	sid := dataflow.Params{model.MetaSessionID: "S1"}
	r.Handle(input("tutor_text", "I ", sid))
	r.Handle(input("tutor_text", "want to go", dataflow.Params{model.MetaSessionID: "S1", model.MetaSessionStatus: "ended"}))

	r.Handle(input(InputResponse, "partial ans", sid))
	r.Handle(input(InputStatus, `{"state":"idle","session_id":""}`, nil))

	msgs, err := s.Messages(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, Message{SessionID: "S1", Sender: "User", Role: "user", Content: "I want go to Paris"}, stripMeta(msgs[0]))
	assert.Equal(t, Message{SessionID: "S1", Sender: "Tutor", Role: "assistant", Content: "I want to go"}, stripMeta(msgs[1]))
	assert.Equal(t, Message{SessionID: "S1", Sender: "Assistant", Role: "assistant", Content: "partial ans"}, stripMeta(msgs[2]))

	statuses, err := s.Statuses(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "active", statuses[0].State)
	assert.Equal(t, "idle", statuses[1].State)
}

func TestRecorderIgnoresNoise(t *testing.T) {
	s := newStore(t)
	r := New(s, nil, zerolog.Nop())

	r.Handle(input(InputStatus, `not json`, nil))
	r.Handle(input("weather", "sunny", dataflow.Params{model.MetaSessionStatus: "ended"}))
	r.Handle(dataflow.Event{Type: dataflow.EventInput, ID: "tutor_text", Data: dataflow.Floats([]float32{1})})
	r.Handle(input(InputUserText, "", nil))

	msgs, err := s.Messages(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRecorderRegistrationIncludesParticipants(t *testing.T) {
	r := New(newStore(t), nil, zerolog.Nop())
	reg := r.Registration("")
	assert.Equal(t, NodeID, reg.NodeID)
	assert.Subset(t, reg.Inputs, []string{InputStatus, InputUserText, InputResponse, "student1_text", "tutor_text"})
	assert.Empty(t, reg.Outputs)
}

func TestRecorderRunsOnHub(t *testing.T) {
	s := newStore(t)
	r := New(s, nil, zerolog.Nop())

	hub := dataflow.NewHub(8)
	node, err := hub.Dial(context.Background(), r.Registration(""))
	require.NoError(t, err)
	defer node.Close()

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), node) }()

	require.NoError(t, hub.Inject(NodeID, "student1_text", dataflow.String("bonjour"),
		dataflow.Params{model.MetaQuestionID: "Q1", model.MetaSessionStatus: "complete"}))
	require.NoError(t, hub.Stop(NodeID))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop")
	}

	msgs, err := s.Messages(context.Background(), "Q1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Student 1", msgs[0].Sender)
	assert.Equal(t, "user", msgs[0].Role)
}

func stripMeta(m Message) Message {
	m.ID = 0
	m.CreatedAt = time.Time{}
	return m
}
