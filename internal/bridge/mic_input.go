package bridge

import (
	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/model"
)

// Mic-input ports.
const (
	OutputAudio   = "audio"
	OutputControl = "control"
	InputStatus   = "status"
	InputControl  = "control"
)

// MicInputBridge forwards captured microphone audio into the pipeline.
type MicInputBridge struct {
	*base
	audio   *Queue[model.Audio]
	control *Queue[model.Control]
}

// NewMicInput creates a mic-input bridge.
func NewMicInput(opts Options) *MicInputBridge {
	opts = opts.withDefaults(KindMicInput)
	b := &MicInputBridge{
		base:    newBase(KindMicInput, opts, []string{InputStatus, InputControl}, []string{OutputAudio, OutputControl}),
		audio:   NewQueue[model.Audio](opts.NodeID, QueueAudio, opts.queue(QueueAudio)),
		control: NewQueue[model.Control](opts.NodeID, QueueControl, opts.queue(QueueControl)),
	}
	b.h = b
	return b
}

// SendAudio queues one captured chunk. A full queue drops the chunk.
func (b *MicInputBridge) SendAudio(chunk model.AudioChunk) error {
	return b.Send(OutputAudio, model.Audio{
		Samples:    chunk.Samples,
		SampleRate: chunk.SampleRate,
		Channels:   1,
	})
}

// Send accepts audio on "audio" and control or text on "control".
func (b *MicInputBridge) Send(outputID string, p model.Payload) error {
	switch v := p.(type) {
	case model.Audio:
		if outputID == OutputAudio {
			if v.ParticipantID == "" {
				v.ParticipantID = b.opts.ParticipantID
			}
			return enqueue(b.base, b.audio, v)
		}
	case model.Control:
		if outputID == OutputControl {
			return enqueue(b.base, b.control, v)
		}
	case model.Text:
		if outputID == OutputControl {
			return enqueue(b.base, b.control, model.Control{Command: string(v)})
		}
	}
	return b.unknownOutput(outputID, p)
}

func (b *MicInputBridge) reset() {}

func (b *MicInputBridge) flush(node dataflow.Node) {
	for {
		a, ok := b.audio.TryPop()
		if !ok {
			break
		}
		b.write(node, OutputAudio, dataflow.Floats(a.Samples), audioParams(a))
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

func (b *MicInputBridge) handleInput(ev dataflow.Event) { b.received(ev) }
