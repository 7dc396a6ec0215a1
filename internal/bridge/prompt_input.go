package bridge

import (
	"encoding/json"
	"strings"

	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/model"
)

// Prompt-input ports.
const (
	OutputTopic    = "topic"
	OutputReset    = "reset"
	OutputUserText = "user_text"
)

// Topic is the payload written to the "topic" output.
type Topic struct {
	SessionID   string   `json:"session_id,omitempty"`
	Topic       string   `json:"topic"`
	TargetWords []string `json:"target_words,omitempty"`
}

type promptItem struct {
	output string
	data   dataflow.Data
}

// PromptInputBridge lets the UI set the session topic, reset the
// conversation context and inject typed user text.
type PromptInputBridge struct {
	*base
	out *Queue[promptItem]
}

// NewPromptInput creates a prompt-input bridge.
func NewPromptInput(opts Options) *PromptInputBridge {
	opts = opts.withDefaults(KindPromptInput)
	b := &PromptInputBridge{
		base: newBase(KindPromptInput, opts, []string{InputStatus}, []string{OutputTopic, OutputReset, OutputUserText}),
		out:  NewQueue[promptItem](opts.NodeID, QueuePrompt, opts.queue(QueuePrompt)),
	}
	b.h = b
	return b
}

// SendTopic writes a topic for sessionID.
func (b *PromptInputBridge) SendTopic(sessionID, topic string, targetWords []string) error {
	if strings.TrimSpace(topic) == "" {
		return invalidData(b.opts.NodeID, "topic is empty")
	}
	j, err := model.NewJSON(Topic{SessionID: sessionID, Topic: topic, TargetWords: targetWords})
	if err != nil {
		return newError(CodeInvalidData, b.opts.NodeID, "topic", err)
	}
	return b.Send(OutputTopic, j)
}

// Reset clears the downstream conversation context.
func (b *PromptInputBridge) Reset() error {
	return b.Send(OutputReset, model.Empty{})
}

// Send accepts JSON or text on "topic", anything on "reset" and text on
// "user_text".
func (b *PromptInputBridge) Send(outputID string, p model.Payload) error {
	switch outputID {
	case OutputTopic:
		switch v := p.(type) {
		case model.JSON:
			return enqueue(b.base, b.out, promptItem{OutputTopic, dataflow.String(string(v))})
		case model.Text:
			raw, err := json.Marshal(Topic{Topic: string(v)})
			if err != nil {
				return newError(CodeInvalidData, b.opts.NodeID, "topic", err)
			}
			return enqueue(b.base, b.out, promptItem{OutputTopic, dataflow.String(string(raw))})
		}
	case OutputReset:
		switch p.(type) {
		case model.Empty, model.Text, model.Control:
			return enqueue(b.base, b.out, promptItem{OutputReset, dataflow.String("reset")})
		}
	case OutputUserText:
		if v, ok := p.(model.Text); ok {
			return enqueue(b.base, b.out, promptItem{OutputUserText, dataflow.String(string(v))})
		}
	}
	return b.unknownOutput(outputID, p)
}

func (b *PromptInputBridge) reset() {}

func (b *PromptInputBridge) flush(node dataflow.Node) {
	for {
		item, ok := b.out.TryPop()
		if !ok {
			return
		}
		b.write(node, item.output, item.data, nil)
	}
}

func (b *PromptInputBridge) handleInput(ev dataflow.Event) { b.received(ev) }
