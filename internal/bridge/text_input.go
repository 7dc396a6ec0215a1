package bridge

import (
	"time"

	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/model"
	"github.com/normanking/tutorbridge/internal/sessionid"
	"github.com/normanking/tutorbridge/internal/stream"
)

// Text-input ports.
const (
	OutputText    = "text"
	InputResponse = "response"
)

// TextInputBridge renders streamed conversation text as chat messages and
// sends typed text and commands into the pipeline.
type TextInputBridge struct {
	*base
	participants *Participants
	text         *Queue[string]
	control      *Queue[model.Control]
	chat         *Queue[model.ChatMessage]

	// worker-owned
	acc *stream.Accumulator
	now func() time.Time
}

// NewTextInput creates a text-input bridge.
func NewTextInput(opts Options) *TextInputBridge {
	opts = opts.withDefaults(KindTextInput)
	inputs := append(opts.Participants.InputIDs(), InputResponse, InputStatus)
	b := &TextInputBridge{
		base:         newBase(KindTextInput, opts, inputs, []string{OutputText, OutputControl}),
		participants: opts.Participants,
		text:         NewQueue[string](opts.NodeID, QueueText, opts.queue(QueueText)),
		control:      NewQueue[model.Control](opts.NodeID, QueueControl, opts.queue(QueueControl)),
		chat:         NewQueue[model.ChatMessage](opts.NodeID, QueueChat, opts.queue(QueueChat)),
		acc:          stream.NewAccumulator(),
		now:          time.Now,
	}
	b.h = b
	return b
}

// Messages exposes chat messages in arrival order.
func (b *TextInputBridge) Messages() <-chan model.ChatMessage { return b.chat.C() }

// SendText queues typed text for the "text" output.
func (b *TextInputBridge) SendText(text string) error {
	return b.Send(OutputText, model.Text(text))
}

// SendCommand queues a control command.
func (b *TextInputBridge) SendCommand(command string, params map[string]any) error {
	return b.Send(OutputControl, model.Control{Command: command, Params: params})
}

// Send accepts text on "text" and "control", and control payloads on
// "control". Text sent to "control" is written to the text output.
func (b *TextInputBridge) Send(outputID string, p model.Payload) error {
	switch v := p.(type) {
	case model.Text:
		if outputID == OutputText || outputID == OutputControl {
			return enqueue(b.base, b.text, string(v))
		}
	case model.Control:
		if outputID == OutputControl {
			return enqueue(b.base, b.control, v)
		}
	}
	return b.unknownOutput(outputID, p)
}

func (b *TextInputBridge) reset() { b.acc.Reset() }

func (b *TextInputBridge) flush(node dataflow.Node) {
	for {
		t, ok := b.text.TryPop()
		if !ok {
			break
		}
		b.write(node, OutputText, dataflow.String(t), nil)
	}
	for {
		c, ok := b.control.TryPop()
		if !ok {
			break
		}
		data, err := controlJSON(c)
		if err != nil {
			b.logger.Warn().Err(err).Str("command", c.Command).Msg("Cannot encode control")
			continue
		}
		b.write(node, OutputControl, data, nil)
	}
}

// isChatInput accepts registered participant inputs and the generic
// "response" input. Other inputs are passed through unparsed.
func (b *TextInputBridge) isChatInput(id string) bool {
	return id == InputResponse || b.participants.Known(id)
}

func (b *TextInputBridge) handleInput(ev dataflow.Event) {
	if !b.isChatInput(ev.ID) {
		b.received(ev)
		return
	}

	content, err := textContent(ev.Data)
	if err != nil {
		b.malformed(ev, err)
		return
	}

	meta := ev.Params.Metadata()
	part := b.participants.Lookup(ev.ID)
	sid := sessionid.FromMetadata(meta, sessionid.Unknown)
	done := meta.SessionDone()

	full := b.acc.Append(stream.Key{Sender: part.Name, SessionID: sid}, content, done)
	chat := model.Chat{
		Content:     full,
		Sender:      part.Name,
		Role:        part.Role,
		TimestampMs: b.now().UnixMilli(),
		IsStreaming: !done,
		SessionID:   sid,
	}
	b.emit(Event{Type: EventDataReceived, InputID: ev.ID, Payload: chat, Metadata: meta})

	if err := b.chat.Push(model.ChatMessageFrom(chat)); err != nil {
		b.logger.Warn().Err(err).Str("sender", part.Name).Msg("Chat queue full, dropping message")
	}
}
