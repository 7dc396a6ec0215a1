package ui

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/normanking/tutorbridge/internal/config"
)

func newTestSettings(t *testing.T) (*Settings, *emitRecorder) {
	t.Helper()
	s := NewSettings(config.DefaultConfig(), nil, zerolog.Nop())
	rec := &emitRecorder{ch: make(chan emitted, 16)}
	s.emit = rec.emit
	s.Bind(context.Background())
	return s, rec
}

func TestSettingsReflectConfig(t *testing.T) {
	s, _ := newTestSettings(t)

	data := s.GetSettings()
	assert.Equal(t, "ws", data.Transport)
	assert.Equal(t, 16000, data.SampleRate)
	assert.Equal(t, 100, data.ChunkMs)
	assert.Equal(t, "debug", data.PipelineLogLevel)
}

func TestSettingsSetLogLevel(t *testing.T) {
	s, rec := newTestSettings(t)

	s.SetLogLevel("warn")
	data := rec.wait(t, "settings:log_level_changed", nil)
	assert.Equal(t, "warn", data)
	assert.Equal(t, "warn", s.GetSettings().LogLevel)
}

func TestSettingsReload(t *testing.T) {
	s, rec := newTestSettings(t)
	cfg := config.DefaultConfig()
	cfg.Audio.InputDevice = "hw:2"
	cfg.Dataflow.URL = "ws://lab:7447/nodes"

	s.Reload(cfg)
	data := rec.wait(t, "settings:reloaded", nil).(SettingsData)
	assert.Equal(t, "hw:2", data.InputDevice)
	assert.Equal(t, "ws://lab:7447/nodes", data.PipelineURL)
}
