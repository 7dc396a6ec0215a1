package session

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/metrics"
	"github.com/normanking/tutorbridge/internal/model"
	"github.com/normanking/tutorbridge/internal/sessionid"
)

// ContextNodeID is the default registration id of the context manager.
const ContextNodeID = "session-context"

// Context manager ports.
const (
	InputTopic     = "topic"
	InputUserText  = "user_text"
	InputTextInput = "text_input"
	InputASRText   = "asr_text"
	InputReset     = "reset"

	OutputUserText = "user_text"
)

// StatusTopicReady is written to status when a topic is stored.
const StatusTopicReady = "topic_ready"

// Topic is the stored conversation context.
type Topic struct {
	SessionID   string   `json:"session_id"`
	Topic       string   `json:"topic"`
	TargetWords []string `json:"target_words,omitempty"`
}

// Prompt is the user_text payload forwarded to the language model.
type Prompt struct {
	Text             string   `json:"text"`
	SessionID        string   `json:"session_id"`
	Topic            string   `json:"topic,omitempty"`
	TargetWords      []string `json:"target_words,omitempty"`
	IsFirstInSession bool     `json:"is_first_in_session"`
	UtteranceIndex   int      `json:"utterance_index"`
}

type contextStatus struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Topic     string `json:"topic,omitempty"`
}

// ContextManager decides when a user utterance becomes a prompt. A topic
// alone never produces one. It is owned by one goroutine.
type ContextManager struct {
	topic     *Topic
	count     int
	sessionID string // last id announced by the controller
	logger    zerolog.Logger
}

// NewContextManager creates an empty context manager.
func NewContextManager(logger zerolog.Logger) *ContextManager {
	return &ContextManager{
		logger: logger.With().Str("component", "session-context").Logger(),
	}
}

// Topic returns the stored topic, or nil.
func (m *ContextManager) Topic() *Topic {
	if m.topic == nil {
		return nil
	}
	t := *m.topic
	t.TargetWords = append([]string(nil), m.topic.TargetWords...)
	return &t
}

// Utterances is the number of prompts forwarded since the last topic or
// reset.
func (m *ContextManager) Utterances() int { return m.count }

// SetTopic stores t and resets the utterance counter. The session id is
// the topic's own, else the controller's current one, else a new id.
func (m *ContextManager) SetTopic(t Topic) Output {
	t.SessionID = sessionid.Resolve(t.SessionID, m.sessionID)
	m.topic = &t
	m.count = 0

	m.logger.Info().
		Str("session_id", t.SessionID).
		Str("topic", t.Topic).
		Int("target_words", len(t.TargetWords)).
		Msg("Topic stored")

	return jsonOutput(OutputStatus, contextStatus{
		State:     StatusTopicReady,
		SessionID: t.SessionID,
		Topic:     t.Topic,
	}, t.SessionID)
}

// UserInput forwards text as a prompt. Blank text is dropped and does not
// count. inputSessionID is used when no topic is stored.
func (m *ContextManager) UserInput(text, inputSessionID string) (Output, bool) {
	if strings.TrimSpace(text) == "" {
		m.logger.Debug().Msg("Dropping empty user input")
		return Output{}, false
	}

	m.count++
	p := Prompt{
		Text:             text,
		IsFirstInSession: m.count == 1,
		UtteranceIndex:   m.count,
	}
	if m.topic != nil {
		p.SessionID = m.topic.SessionID
		p.Topic = m.topic.Topic
		p.TargetWords = m.topic.TargetWords
	} else {
		p.SessionID = sessionid.Resolve(inputSessionID, m.sessionID)
	}

	metrics.ContextForwards.Inc()
	m.logger.Debug().
		Str("session_id", p.SessionID).
		Int("utterance", p.UtteranceIndex).
		Bool("first", p.IsFirstInSession).
		Msg("Forwarding user input")

	return jsonOutput(OutputUserText, p, p.SessionID), true
}

// Reset clears the topic and the counter.
func (m *ContextManager) Reset() {
	m.topic = nil
	m.count = 0
	m.logger.Info().Msg("Context reset")
}

// Handle dispatches one pipeline input.
func (m *ContextManager) Handle(inputID string, data dataflow.Data, meta model.Metadata) []Output {
	switch inputID {
	case InputTopic:
		t, ok := parseTopic(data)
		if !ok {
			m.logger.Warn().Msg("Dropping malformed topic")
			return nil
		}
		if t.SessionID == "" {
			t.SessionID = sessionid.FromMetadata(meta, "")
		}
		return []Output{m.SetTopic(t)}

	case InputUserText, InputTextInput, InputASRText:
		text, ok := inputText(data)
		if !ok {
			m.logger.Warn().Str("input", inputID).Msg("Dropping non-text user input")
			return nil
		}
		if out, ok := m.UserInput(text, sessionid.FromMetadata(meta, "")); ok {
			return []Output{out}
		}
		return nil

	case InputReset:
		m.Reset()
		return nil

	case InputControl:
		m.control(data)
		return nil

	default:
		m.logger.Debug().Str("input", inputID).Msg("Ignoring unknown input")
		return nil
	}
}

// control tracks the controller's session id and honours reset.
func (m *ContextManager) control(data dataflow.Data) {
	text, ok := data.Text()
	if !ok {
		return
	}
	var msg controlMessage
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		msg.Command = text
	}

	cmd, ok := ParseCommand(msg.Command)
	if !ok {
		return
	}
	switch cmd {
	case CmdStart:
		m.sessionID = msg.SessionID
	case CmdStop:
		m.sessionID = ""
		m.Reset()
	case CmdReset:
		m.Reset()
	}
}

func parseTopic(d dataflow.Data) (Topic, bool) {
	text, ok := d.Text()
	if !ok {
		return Topic{}, false
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		var t Topic
		if err := json.Unmarshal([]byte(trimmed), &t); err != nil {
			return Topic{}, false
		}
		return t, true
	}
	if trimmed == "" {
		return Topic{}, false
	}
	return Topic{Topic: trimmed}, true
}
