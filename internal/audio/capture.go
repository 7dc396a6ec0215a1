package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/bus"
	"github.com/normanking/tutorbridge/internal/model"
)

// FrameFunc receives interleaved float samples in the stream's format.
type FrameFunc func(interleaved []float32, f Format)

// Source opens a raw capture stream.
type Source interface {
	Open(ctx context.Context, cfg Config, onFrames FrameFunc) (Stream, error)
}

// Stream is an open capture stream. Close stops delivery; no callback
// runs after Close returns.
type Stream interface {
	Format() Format
	Close() error
}

const levelPublishInterval = 50 * time.Millisecond

// Capture turns a Source into metered, fixed-duration mono chunks.
type Capture struct {
	cfg      Config
	source   Source
	eventBus *bus.EventBus
	logger   zerolog.Logger
	meter    Meter
	chunks   chan model.AudioChunk

	mu     sync.Mutex
	state  CaptureState
	stream Stream
}

// NewCapture creates a capture. eventBus may be nil.
func NewCapture(cfg Config, source Source, eventBus *bus.EventBus, logger zerolog.Logger) *Capture {
	def := DefaultConfig()
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = def.ChunkDuration
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	return &Capture{
		cfg:      cfg,
		source:   source,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "audio-capture").Logger(),
		chunks:   make(chan model.AudioChunk, cfg.QueueSize),
		state:    StateIdle,
	}
}

// Chunks delivers captured chunks. The channel stays open across
// Start/Stop cycles.
func (c *Capture) Chunks() <-chan model.AudioChunk { return c.chunks }

// Levels returns the current meter reading.
func (c *Capture) Levels() Levels { return c.meter.Levels() }

// State returns the capture state.
func (c *Capture) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens the source and begins chunking.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return ErrCaptureActive
	}

	sess := &captureSession{capture: c}
	stream, err := c.source.Open(ctx, c.cfg, sess.onFrames)
	if err != nil {
		return fmt.Errorf("open capture source: %w", err)
	}
	f := stream.Format()
	if err := f.Validate(); err != nil {
		_ = stream.Close()
		return err
	}

	c.stream = stream
	c.state = StateCapturing
	c.logger.Info().Int("sample_rate", f.SampleRate).Int("channels", f.Channels).Msg("Capture started")
	c.publish(bus.EventTypeCaptureStarted, map[string]any{
		"sample_rate": f.SampleRate,
		"channels":    f.Channels,
	})
	return nil
}

// Stop closes the stream and resets the meter. It is a no-op when
// nothing is capturing.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return nil
	}
	err := c.stream.Close()
	c.stream = nil
	c.state = StateIdle
	c.meter.Reset()

	if err != nil {
		c.logger.Warn().Err(err).Msg("Capture stream closed with error")
	} else {
		c.logger.Info().Msg("Capture stopped")
	}
	c.publish(bus.EventTypeCaptureStopped, nil)
	return err
}

func (c *Capture) publish(t bus.EventType, data map[string]any) {
	if c.eventBus == nil {
		return
	}
	c.eventBus.Publish(bus.Event{Type: t, Source: "audio-capture", Data: data})
}

// captureSession holds the state owned by one stream's callback.
type captureSession struct {
	capture     *Capture
	chunker     *Chunker
	lastPublish time.Time
}

func (s *captureSession) onFrames(interleaved []float32, f Format) {
	c := s.capture
	if f.Validate() != nil {
		return
	}
	// The meter sees the captured frame, before channels are averaged.
	c.meter.Update(interleaved)
	mono := Downmix(interleaved, f.Channels)

	if s.chunker == nil || s.chunker.rate != f.SampleRate {
		s.chunker = NewChunker(f.SampleRate, c.cfg.ChunkDuration, c.chunks)
	}
	s.chunker.Write(mono)

	if now := time.Now(); now.Sub(s.lastPublish) >= levelPublishInterval {
		s.lastPublish = now
		lv := c.meter.Levels()
		c.publish(bus.EventTypeAudioLevel, map[string]any{"level": lv.Level, "peak": lv.Peak})
	}
}
