// Package audio provides microphone capture, level metering and chunking
// for the mic-input bridge.
package audio

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrCaptureActive    = errors.New("capture already active")
	ErrCaptureNotActive = errors.New("capture not started")
	ErrInvalidFormat    = errors.New("invalid audio format")
)

// CaptureState represents the current capture state
type CaptureState string

const (
	StateIdle      CaptureState = "idle"
	StateCapturing CaptureState = "capturing"
)

// Config holds capture configuration
type Config struct {
	SampleRate    int           `mapstructure:"sample_rate"` // requested rate, the device may differ
	Channels      int           `mapstructure:"channels"`
	ChunkDuration time.Duration `mapstructure:"chunk_duration"`
	QueueSize     int           `mapstructure:"queue_size"`

	// ffmpeg source settings
	Command     string `mapstructure:"command"`
	InputFormat string `mapstructure:"input_format"`
	InputDevice string `mapstructure:"input_device"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		Channels:      1,
		ChunkDuration: 100 * time.Millisecond,
		QueueSize:     32,
		Command:       "ffmpeg",
		InputFormat:   "pulse",
		InputDevice:   "default",
	}
}

// Format is what a source actually delivers.
type Format struct {
	SampleRate int
	Channels   int
}

// Validate rejects formats that cannot be chunked.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return ErrInvalidFormat
	}
	return nil
}

// Levels is a snapshot of the meter.
type Levels struct {
	Level float64 `json:"level"`
	Peak  float64 `json:"peak"`
}
