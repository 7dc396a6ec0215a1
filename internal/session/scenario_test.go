package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/tutorbridge/internal/bridge"
	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/model"
)

type pipeline struct {
	hub    *dataflow.Hub
	text   *bridge.TextInputBridge
	llm    dataflow.Node
	ui     dataflow.Node
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startPipeline(t *testing.T) *pipeline {
	t.Helper()
	hub := dataflow.NewHub(32)
	hub.MustConnect("session-controller/control", "session-context/control")
	hub.MustConnect("session-controller/status", "ui/status")
	hub.MustConnect("session-context/status", "ui/context_status")
	hub.MustConnect("text-input/text", "session-context/text_input")
	hub.MustConnect("session-context/user_text", "llm/user_text")

	ctx, cancel := context.WithCancel(context.Background())
	p := &pipeline{hub: hub, cancel: cancel}

	ctlNode, err := hub.Dial(ctx, ControllerRegistration(""))
	require.NoError(t, err)
	ctxNode, err := hub.Dial(ctx, ContextRegistration(""))
	require.NoError(t, err)
	p.llm, err = hub.Dial(ctx, dataflow.Registration{NodeID: "llm", Inputs: []string{"user_text"}})
	require.NoError(t, err)
	p.ui, err = hub.Dial(ctx, dataflow.Registration{NodeID: "ui", Inputs: []string{"status", "context_status"}})
	require.NoError(t, err)

	ctl := NewController("", zerolog.Nop())
	ctl.newID = func() string { return "S1" }

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		defer ctlNode.Close()
		assert.NoError(t, RunController(ctx, ctlNode, ctl, zerolog.Nop()))
	}()
	go func() {
		defer p.wg.Done()
		defer ctxNode.Close()
		assert.NoError(t, RunContext(ctx, ctxNode, NewContextManager(zerolog.Nop()), zerolog.Nop()))
	}()

	p.text = bridge.NewTextInput(bridge.Options{
		Dialer:      hub,
		Logger:      zerolog.Nop(),
		ConnectPoll: 5 * time.Millisecond,
		RecvTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, p.text.Connect())

	t.Cleanup(func() {
		p.text.Close()
		cancel()
		p.wg.Wait()
		p.llm.Close()
		p.ui.Close()
	})
	return p
}

func (p *pipeline) recv(t *testing.T, node dataflow.Node, input string, v any) dataflow.Event {
	t.Helper()
	ev, err := node.Recv(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, dataflow.EventInput, ev.Type)
	require.Equal(t, input, ev.ID)
	text, ok := ev.Data.Text()
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(text), v))
	return ev
}

func (p *pipeline) chat(t *testing.T) model.ChatMessage {
	t.Helper()
	select {
	case msg := <-p.text.Messages():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chat message")
		return model.ChatMessage{}
	}
}

func TestTutoringSession(t *testing.T) {
	p := startPipeline(t)

	require.NoError(t, p.hub.Inject(ControllerNodeID, InputControl, dataflow.String("start"), nil))
	var st statusMessage
	p.recv(t, p.ui, "status", &st)
	assert.Equal(t, statusMessage{State: StateActive, SessionID: "S1"}, st)

	topic := `{"session_id":"S1","topic":"travel","target_words":["itinerary"]}`
	require.NoError(t, p.hub.Inject(ContextNodeID, InputTopic, dataflow.String(topic), nil))
	var cs contextStatus
	p.recv(t, p.ui, "context_status", &cs)
	assert.Equal(t, StatusTopicReady, cs.State)

	// The topic alone must not reach the language model.
	_, err := p.llm.Recv(50 * time.Millisecond)
	assert.ErrorIs(t, err, dataflow.ErrTimeout)

	require.NoError(t, p.text.SendText("I want go to Paris"))
	var pr Prompt
	ev := p.recv(t, p.llm, "user_text", &pr)
	assert.Equal(t, "I want go to Paris", pr.Text)
	assert.Equal(t, "S1", pr.SessionID)
	assert.Equal(t, "travel", pr.Topic)
	assert.Equal(t, []string{"itinerary"}, pr.TargetWords)
	assert.True(t, pr.IsFirstInSession)
	assert.Equal(t, "S1", ev.Params[model.MetaSessionID])

	sid := dataflow.Params{model.MetaSessionID: "S1"}
	require.NoError(t, p.hub.Inject("text-input", "response", dataflow.String("I "), sid))
	msg := p.chat(t)
	assert.Equal(t, "I ", msg.Content)
	assert.True(t, msg.IsStreaming)
	assert.Equal(t, "S1", msg.SessionID)
	assert.Equal(t, bridge.DefaultSender.Name, msg.Sender)

	ended := dataflow.Params{model.MetaSessionID: "S1", model.MetaSessionStatus: "ended"}
	require.NoError(t, p.hub.Inject("text-input", "response", dataflow.String("want to go"), ended))
	msg = p.chat(t)
	assert.Equal(t, "I want to go", msg.Content)
	assert.False(t, msg.IsStreaming)

	require.NoError(t, p.hub.Inject(ControllerNodeID, InputControl, dataflow.String(`{"command":"stop"}`), nil))
	p.recv(t, p.ui, "status", &st)
	assert.Equal(t, StateIdle, st.State)
	assert.Empty(t, st.SessionID)

	require.NoError(t, p.text.SendText("hello again"))
	pr = Prompt{}
	p.recv(t, p.llm, "user_text", &pr)
	assert.True(t, pr.IsFirstInSession)
	assert.Empty(t, pr.Topic)
	assert.NotEqual(t, "S1", pr.SessionID)
}

func TestRunnerStopsOnPipelineStop(t *testing.T) {
	hub := dataflow.NewHub(4)
	node, err := hub.Dial(context.Background(), ControllerRegistration("ctl"))
	require.NoError(t, err)
	defer node.Close()

	done := make(chan error, 1)
	go func() { done <- RunController(context.Background(), node, NewController("ctl", zerolog.Nop()), zerolog.Nop()) }()

	require.NoError(t, hub.Inject("ctl", InputControl, dataflow.String("nonsense"), nil))
	require.NoError(t, hub.Stop("ctl"))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop")
	}
}

func TestRunnerReportsPipelineError(t *testing.T) {
	node := &scriptedNode{id: "ctx", events: []dataflow.Event{{Type: dataflow.EventError, Err: assert.AnError}}}
	err := RunContext(context.Background(), node, NewContextManager(zerolog.Nop()), zerolog.Nop())
	assert.ErrorIs(t, err, assert.AnError)
}

type scriptedNode struct {
	id     string
	events []dataflow.Event
}

func (n *scriptedNode) ID() string { return n.id }

func (n *scriptedNode) Recv(time.Duration) (dataflow.Event, error) {
	if len(n.events) == 0 {
		return dataflow.Event{}, dataflow.ErrClosed
	}
	ev := n.events[0]
	n.events = n.events[1:]
	return ev, nil
}

func (n *scriptedNode) Send(string, dataflow.Data, dataflow.Params) error { return nil }
func (n *scriptedNode) Close() error                                      { return nil }
