package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/model"
)

func chatEvents(t *testing.T, sub *Subscription, n int) []model.Chat {
	t.Helper()
	out := make([]model.Chat, 0, n)
	for len(out) < n {
		ev := waitEvent(t, sub, isType(EventDataReceived))
		chat, ok := ev.Payload.(model.Chat)
		require.True(t, ok, "payload %s", model.Describe(ev.Payload))
		out = append(out, chat)
	}
	return out
}

func TestTextInputAccumulatesStream(t *testing.T) {
	hub := dataflow.NewHub(16)
	b := NewTextInput(testOptions(hub))
	defer b.Close()
	sub := b.Subscribe()
	require.NoError(t, b.Connect())

	q := dataflow.Params{"question_id": "q1"}
	require.NoError(t, hub.Inject("text-input", "tutor_text", dataflow.String("Hel"), q))
	require.NoError(t, hub.Inject("text-input", "tutor_text", dataflow.String("lo"), q))
	require.NoError(t, hub.Inject("text-input", "tutor_text", dataflow.String(" world"),
		dataflow.Params{"question_id": "q1", "session_status": "ended"}))

	chats := chatEvents(t, sub, 3)
	assert.Equal(t, "Hel", chats[0].Content)
	assert.Equal(t, "Hello", chats[1].Content)
	assert.Equal(t, "Hello world", chats[2].Content)
	assert.True(t, chats[0].IsStreaming)
	assert.True(t, chats[1].IsStreaming)
	assert.False(t, chats[2].IsStreaming)
	for _, c := range chats {
		assert.Equal(t, "Tutor", c.Sender)
		assert.Equal(t, "assistant", c.Role)
		assert.Equal(t, "q1", c.SessionID)
	}

	// The finished entry is removed, so the same key starts over.
	require.NoError(t, hub.Inject("text-input", "tutor_text", dataflow.String("Next"), q))
	assert.Equal(t, "Next", chatEvents(t, sub, 1)[0].Content)

	for i := 0; i < 4; i++ {
		select {
		case msg := <-b.Messages():
			assert.Equal(t, "Tutor", msg.Sender)
		case <-time.After(time.Second):
			t.Fatal("chat message not queued")
		}
	}
}

func TestTextInputKeysBySenderAndSession(t *testing.T) {
	hub := dataflow.NewHub(16)
	b := NewTextInput(testOptions(hub))
	defer b.Close()
	sub := b.Subscribe()
	require.NoError(t, b.Connect())

	require.NoError(t, hub.Inject("text-input", "student1_text", dataflow.String("a"), nil))
	require.NoError(t, hub.Inject("text-input", "student2_text", dataflow.String("b"), nil))
	require.NoError(t, hub.Inject("text-input", "student1_text", dataflow.String("c"), nil))
	require.NoError(t, hub.Inject("text-input", "response", dataflow.String(`{"text":"hi"}`),
		dataflow.Params{"session_id": "s9", "session_status": "COMPLETE"}))

	chats := chatEvents(t, sub, 4)
	assert.Equal(t, model.Chat{Content: "a", Sender: "Student 1", Role: "user", SessionID: "unknown", IsStreaming: true, TimestampMs: chats[0].TimestampMs}, chats[0])
	assert.Equal(t, "b", chats[1].Content)
	assert.Equal(t, "Student 2", chats[1].Sender)
	assert.Equal(t, "ac", chats[2].Content)

	assert.Equal(t, "hi", chats[3].Content)
	assert.Equal(t, "Assistant", chats[3].Sender)
	assert.Equal(t, "s9", chats[3].SessionID)
	assert.False(t, chats[3].IsStreaming)
}

func TestTextInputOnlyRegisteredInputsAreChat(t *testing.T) {
	hub := dataflow.NewHub(16)
	b := NewTextInput(testOptions(hub))
	defer b.Close()
	sub := b.Subscribe()
	require.NoError(t, b.Connect())

	require.NoError(t, hub.Inject("text-input", "observer_text", dataflow.String("aside"), nil))
	ev := waitEvent(t, sub, isType(EventDataReceived))
	assert.Equal(t, "observer_text", ev.InputID)
	assert.Equal(t, model.Text("aside"), ev.Payload)

	select {
	case msg := <-b.Messages():
		t.Fatalf("unregistered input reached the chat queue: %+v", msg)
	default:
	}
}

func TestTextInputDropsMalformedChat(t *testing.T) {
	hub := dataflow.NewHub(16)
	b := NewTextInput(testOptions(hub))
	defer b.Close()
	sub := b.Subscribe()
	require.NoError(t, b.Connect())

	require.NoError(t, hub.Inject("text-input", "tutor_text", dataflow.Bytes([]byte{0xff}), nil))
	require.NoError(t, hub.Inject("text-input", "tutor_text", dataflow.Floats([]float32{1}), nil))
	require.NoError(t, hub.Inject("text-input", "tutor_text", dataflow.String("ok"), nil))

	assert.Equal(t, "ok", chatEvents(t, sub, 1)[0].Content)
}

func TestTextInputSendAliases(t *testing.T) {
	hub := dataflow.NewHub(16)
	hub.MustConnect("text-input/text", "ctx/text_input")
	hub.MustConnect("text-input/control", "ctx/control")
	ctx := dialSink(t, hub, "ctx", "text_input", "control")

	b := NewTextInput(testOptions(hub))
	defer b.Close()
	require.NoError(t, b.Connect())

	require.NoError(t, b.Send(OutputControl, model.Text("typed")))
	ev := recvInput(t, ctx)
	assert.Equal(t, "text_input", ev.ID)
	text, _ := ev.Data.Text()
	assert.Equal(t, "typed", text)

	require.NoError(t, b.SendCommand("start", nil))
	ev = recvInput(t, ctx)
	assert.Equal(t, "control", ev.ID)
	text, _ = ev.Data.Text()
	assert.JSONEq(t, `{"command":"start"}`, text)

	require.NoError(t, b.SendText("hello"))
	ev = recvInput(t, ctx)
	text, _ = ev.Data.Text()
	assert.Equal(t, "hello", text)
}

func TestSystemLogParsesEntries(t *testing.T) {
	hub := dataflow.NewHub(16)
	opts := testOptions(hub)
	opts.MinLogLevel = model.LevelInfo
	opts.LogHistory = 2
	b := NewSystemLog(opts)
	defer b.Close()
	require.NoError(t, b.Connect())

	require.NoError(t, hub.Inject("system-log", "log",
		dataflow.String(`{"level":"WARNING","message":"slow asr","node_id":"asr","timestamp_ms":1700000000000,"metadata":{"latency":1.5}}`), nil))
	require.NoError(t, hub.Inject("system-log", "log", dataflow.String(`{"level":"debug","message":"noise"}`), nil))
	require.NoError(t, hub.Inject("system-log", "log", dataflow.String("plain line"), dataflow.Params{"node_id": "llm"}))
	require.NoError(t, hub.Inject("system-log", "log", dataflow.String("third"), nil))

	var got []model.LogEntry
	for len(got) < 3 {
		select {
		case e := <-b.Entries():
			got = append(got, e)
		case <-time.After(2 * time.Second):
			t.Fatal("log entry not delivered")
		}
	}

	assert.Equal(t, model.LevelWarn, got[0].Level)
	assert.Equal(t, "slow asr", got[0].Message)
	assert.Equal(t, "asr", got[0].NodeID)
	assert.Equal(t, int64(1700000000000), got[0].Timestamp.UnixMilli())
	assert.Equal(t, "1.5", got[0].Metadata["latency"])

	assert.Equal(t, model.LevelInfo, got[1].Level)
	assert.Equal(t, "plain line", got[1].Message)
	assert.Equal(t, "llm", got[1].NodeID)

	assert.Equal(t, "log", got[2].NodeID)

	history := b.History(0)
	require.Len(t, history, 2)
	assert.Equal(t, "plain line", history[0].Message)
	assert.Equal(t, "third", history[1].Message)
	assert.Len(t, b.History(1), 1)
}

func TestAudioPlayerPlaybackAndCompletion(t *testing.T) {
	hub := dataflow.NewHub(16)
	hub.MustConnect("audio-player/audio_complete", "session-controller/audio_complete")
	ctrl := dialSink(t, hub, "session-controller", "audio_complete")

	b := NewAudioPlayer(testOptions(hub))
	defer b.Close()
	require.NoError(t, b.Connect())

	require.NoError(t, hub.Inject("audio-player", "audio", dataflow.Floats([]float32{0.1, 0.2}),
		dataflow.Params{"sample_rate": 24000, "question_id": "q7"}))

	select {
	case a := <-b.Playback():
		assert.Equal(t, 24000, a.SampleRate)
		assert.Equal(t, 1, a.Channels)
		assert.Equal(t, "q7", a.QuestionID)
		assert.Equal(t, []float32{0.1, 0.2}, a.Samples)
	case <-time.After(2 * time.Second):
		t.Fatal("audio not queued for playback")
	}

	require.NoError(t, hub.Inject("audio-player", "audio", dataflow.Floats([]float32{0}), nil))
	select {
	case a := <-b.Playback():
		assert.Equal(t, DefaultSampleRate, a.SampleRate)
	case <-time.After(2 * time.Second):
		t.Fatal("audio not queued for playback")
	}

	require.NoError(t, b.PlaybackFinished("q7"))
	ev := recvInput(t, ctrl)
	assert.Equal(t, "audio_complete", ev.ID)
	text, _ := ev.Data.Text()
	assert.Equal(t, "q7", text)
	assert.Equal(t, "q7", ev.Params.Metadata().Value(model.MetaSessionID))
}

func TestPromptInputOutputs(t *testing.T) {
	hub := dataflow.NewHub(16)
	hub.MustConnect("prompt-input/topic", "session-context/topic")
	hub.MustConnect("prompt-input/reset", "session-context/reset")
	hub.MustConnect("prompt-input/user_text", "session-context/user_text")
	ctx := dialSink(t, hub, "session-context", "topic", "reset", "user_text")

	b := NewPromptInput(testOptions(hub))
	defer b.Close()
	require.NoError(t, b.Connect())

	require.NoError(t, b.SendTopic("s1", "animals", []string{"cat", "dog"}))
	ev := recvInput(t, ctx)
	assert.Equal(t, "topic", ev.ID)
	text, _ := ev.Data.Text()
	assert.JSONEq(t, `{"session_id":"s1","topic":"animals","target_words":["cat","dog"]}`, text)

	require.NoError(t, b.Reset())
	ev = recvInput(t, ctx)
	assert.Equal(t, "reset", ev.ID)

	require.NoError(t, b.Send(OutputUserText, model.Text("I like cats")))
	ev = recvInput(t, ctx)
	assert.Equal(t, "user_text", ev.ID)
	text, _ = ev.Data.Text()
	assert.Equal(t, "I like cats", text)

	assert.NoError(t, b.Send(OutputUserText, model.Audio{}))
	assert.Equal(t, 0, b.out.Len())

	assert.ErrorIs(t, b.SendTopic("s1", "  ", nil), ErrInvalidData)
}
