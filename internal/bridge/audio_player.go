package bridge

import (
	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/model"
)

// Audio-player ports.
const (
	InputAudio          = "audio"
	OutputAudioComplete = "audio_complete"
)

// AudioPlayerBridge receives synthesized speech for playback and reports
// when playback has finished.
type AudioPlayerBridge struct {
	*base
	playback *Queue[model.Audio]
	complete *Queue[string]
}

// NewAudioPlayer creates an audio-player bridge.
func NewAudioPlayer(opts Options) *AudioPlayerBridge {
	opts = opts.withDefaults(KindAudioPlayer)
	b := &AudioPlayerBridge{
		base:     newBase(KindAudioPlayer, opts, []string{InputAudio, InputStatus}, []string{OutputAudioComplete}),
		playback: NewQueue[model.Audio](opts.NodeID, QueuePlayback, opts.queue(QueuePlayback)),
		complete: NewQueue[string](opts.NodeID, QueueControl, opts.queue(QueueControl)),
	}
	b.h = b
	return b
}

// Playback exposes received audio in arrival order.
func (b *AudioPlayerBridge) Playback() <-chan model.Audio { return b.playback.C() }

// PlaybackFinished signals audio_complete for sessionID.
func (b *AudioPlayerBridge) PlaybackFinished(sessionID string) error {
	return b.Send(OutputAudioComplete, model.Text(sessionID))
}

// Send accepts text or empty payloads on "audio_complete".
func (b *AudioPlayerBridge) Send(outputID string, p model.Payload) error {
	if outputID == OutputAudioComplete {
		switch v := p.(type) {
		case model.Text:
			return enqueue(b.base, b.complete, string(v))
		case model.Empty:
			return enqueue(b.base, b.complete, "")
		}
	}
	return b.unknownOutput(outputID, p)
}

func (b *AudioPlayerBridge) reset() {}

func (b *AudioPlayerBridge) flush(node dataflow.Node) {
	for {
		sid, ok := b.complete.TryPop()
		if !ok {
			return
		}
		var params dataflow.Params
		if sid != "" {
			params = dataflow.Params{model.MetaSessionID: sid}
		}
		b.write(node, OutputAudioComplete, dataflow.String(sid), params)
	}
}

func (b *AudioPlayerBridge) handleInput(ev dataflow.Event) {
	if ev.Data.Kind != dataflow.DataFloats {
		b.received(ev)
		return
	}

	meta := ev.Params.Metadata()
	a := audioFromWire(ev.Data.Floats, meta)
	b.emit(Event{Type: EventDataReceived, InputID: ev.ID, Payload: a, Metadata: meta})
	if err := b.playback.Push(a); err != nil {
		b.logger.Warn().Err(err).Msg("Playback queue full, dropping audio")
	}
}
