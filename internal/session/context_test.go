package session

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/model"
)

func prompt(t *testing.T, outs []Output) Prompt {
	t.Helper()
	require.Len(t, outs, 1)
	require.Equal(t, OutputUserText, outs[0].Port)
	var p Prompt
	decode(t, outs[0], &p)
	return p
}

func TestTopicNeverForwards(t *testing.T) {
	m := NewContextManager(zerolog.Nop())

	outs := m.Handle(InputTopic, dataflow.String(`{"session_id":"S1","topic":"travel","target_words":["itinerary"]}`), model.Metadata{})
	require.Len(t, outs, 1)
	assert.Equal(t, OutputStatus, outs[0].Port)

	var st contextStatus
	decode(t, outs[0], &st)
	assert.Equal(t, StatusTopicReady, st.State)
	assert.Equal(t, "S1", st.SessionID)
	assert.Equal(t, 0, m.Utterances())

	require.NotNil(t, m.Topic())
	assert.Equal(t, []string{"itinerary"}, m.Topic().TargetWords)
}

func TestFirstUtteranceFlag(t *testing.T) {
	m := NewContextManager(zerolog.Nop())
	m.SetTopic(Topic{SessionID: "S1", Topic: "travel", TargetWords: []string{"itinerary"}})

	p := prompt(t, m.Handle(InputASRText, dataflow.String("I want go to Paris"), model.Metadata{}))
	assert.Equal(t, Prompt{
		Text:             "I want go to Paris",
		SessionID:        "S1",
		Topic:            "travel",
		TargetWords:      []string{"itinerary"},
		IsFirstInSession: true,
		UtteranceIndex:   1,
	}, p)

	p = prompt(t, m.Handle(InputTextInput, dataflow.String(`{"text":"and Rome"}`), model.Metadata{}))
	assert.False(t, p.IsFirstInSession)
	assert.Equal(t, 2, p.UtteranceIndex)
	assert.Equal(t, "and Rome", p.Text)

	m.SetTopic(Topic{SessionID: "S1", Topic: "food"})
	p = prompt(t, m.Handle(InputUserText, dataflow.String("pasta"), model.Metadata{}))
	assert.True(t, p.IsFirstInSession)
	assert.Equal(t, "food", p.Topic)

	m.Handle(InputReset, dataflow.String("reset"), model.Metadata{})
	assert.Nil(t, m.Topic())
	p = prompt(t, m.Handle(InputUserText, dataflow.String("hello"), model.NewMetadata(model.Pair{Key: "session_id", Value: "S7"})))
	assert.True(t, p.IsFirstInSession)
	assert.Equal(t, "S7", p.SessionID)
	assert.Empty(t, p.Topic)
}

func TestEmptyInputIsNeutral(t *testing.T) {
	m := NewContextManager(zerolog.Nop())
	m.SetTopic(Topic{SessionID: "S1", Topic: "travel"})

	for _, in := range []string{"", "   ", "\n\t", `{"text":"  "}`} {
		assert.Empty(t, m.Handle(InputASRText, dataflow.String(in), model.Metadata{}), in)
	}
	assert.Equal(t, 0, m.Utterances())

	p := prompt(t, m.Handle(InputASRText, dataflow.String("hi"), model.Metadata{}))
	assert.True(t, p.IsFirstInSession)
}

func TestForwardCountMatchesNonEmptyInputs(t *testing.T) {
	m := NewContextManager(zerolog.Nop())
	inputs := []string{"a", "", "b", " ", "c", "topic:x", "d", ""}

	forwards, nonEmpty := 0, 0
	for _, in := range inputs {
		if in == "topic:x" {
			assert.Equal(t, []string{OutputStatus}, ports(m.Handle(InputTopic, dataflow.String("x"), model.Metadata{})))
			continue
		}
		if in != "" && in != " " {
			nonEmpty++
		}
		forwards += len(m.Handle(InputUserText, dataflow.String(in), model.Metadata{}))
	}
	assert.Equal(t, nonEmpty, forwards)
}

func TestControlTracksControllerSession(t *testing.T) {
	m := NewContextManager(zerolog.Nop())

	m.Handle(InputControl, dataflow.String(`{"command":"start","session_id":"S9"}`), model.Metadata{})
	m.Handle(InputTopic, dataflow.String("animals"), model.Metadata{})
	require.NotNil(t, m.Topic())
	assert.Equal(t, "S9", m.Topic().SessionID)
	assert.Equal(t, "animals", m.Topic().Topic)

	m.Handle(InputUserText, dataflow.String("cat"), model.Metadata{})
	m.Handle(InputControl, dataflow.String(`{"command":"reset","session_id":"S9"}`), model.Metadata{})
	assert.Nil(t, m.Topic())
	assert.Equal(t, 0, m.Utterances())

	m.Handle(InputControl, dataflow.String(`{"command":"stop","session_id":"S9"}`), model.Metadata{})
	p := prompt(t, m.Handle(InputUserText, dataflow.String("dog"), model.Metadata{}))
	assert.NotEqual(t, "S9", p.SessionID)
	assert.NotEmpty(t, p.SessionID)
}

func TestMalformedAndUnknownInputs(t *testing.T) {
	m := NewContextManager(zerolog.Nop())

	assert.Empty(t, m.Handle(InputTopic, dataflow.String(`{"topic":`), model.Metadata{}))
	assert.Nil(t, m.Topic())
	assert.Empty(t, m.Handle(InputUserText, dataflow.Floats([]float32{1}), model.Metadata{}))
	assert.Empty(t, m.Handle("weather", dataflow.String("sunny"), model.Metadata{}))
	assert.Equal(t, 0, m.Utterances())
}
