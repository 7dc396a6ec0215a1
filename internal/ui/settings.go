package ui

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/normanking/tutorbridge/internal/config"
	"github.com/normanking/tutorbridge/internal/logging"
)

// SettingsData is the part of the configuration the settings panel shows.
type SettingsData struct {
	Transport   string `json:"transport"`
	PipelineURL string `json:"pipelineUrl"`

	InputFormat string `json:"inputFormat"`
	InputDevice string `json:"inputDevice"`
	SampleRate  int    `json:"sampleRate"`
	ChunkMs     int    `json:"chunkMs"`

	LogLevel         string `json:"logLevel"`
	PipelineLogLevel string `json:"pipelineLogLevel"`
	ParticipantID    string `json:"participantId"`
}

// Settings exposes the active configuration to the frontend. The file on
// disk is the source of truth; edits there arrive through Reload.
type Settings struct {
	ctx    context.Context
	emit   EmitFunc
	appLog *logging.Logger
	logger zerolog.Logger

	mu  sync.Mutex
	cfg *config.Config
}

// NewSettings creates the settings binding. appLog may be nil.
func NewSettings(cfg *config.Config, appLog *logging.Logger, logger zerolog.Logger) *Settings {
	return &Settings{
		emit:   runtime.EventsEmit,
		appLog: appLog,
		cfg:    cfg,
		logger: logger.With().Str("component", "settings").Logger(),
	}
}

// Bind sets the Wails runtime context
func (s *Settings) Bind(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
}

// GetSettings returns current settings
func (s *Settings) GetSettings() SettingsData {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cfg
	return SettingsData{
		Transport:        c.Dataflow.Transport,
		PipelineURL:      c.Dataflow.URL,
		InputFormat:      c.Audio.InputFormat,
		InputDevice:      c.Audio.InputDevice,
		SampleRate:       c.Audio.SampleRate,
		ChunkMs:          int(c.Audio.ChunkDuration / time.Millisecond),
		LogLevel:         c.Logging.Level,
		PipelineLogLevel: c.Bridge.MinLogLevel,
		ParticipantID:    c.Bridge.ParticipantID,
	}
}

// SetLogLevel changes the application log level for this run. It is not
// written back to the config file.
func (s *Settings) SetLogLevel(level string) {
	s.mu.Lock()
	s.cfg.Logging.Level = level
	ctx := s.ctx
	s.mu.Unlock()

	if s.appLog != nil {
		s.appLog.SetLevel(level)
	}
	s.logger.Info().Str("level", level).Msg("Log level set")
	if ctx != nil {
		s.emit(ctx, "settings:log_level_changed", level)
	}
}

// Reload replaces the configuration after the file changed on disk.
func (s *Settings) Reload(cfg *config.Config) {
	s.mu.Lock()
	*s.cfg = *cfg
	ctx := s.ctx
	s.mu.Unlock()

	if s.appLog != nil {
		s.appLog.SetLevel(cfg.Logging.Level)
	}
	s.logger.Info().Msg("Settings reloaded from disk")
	if ctx != nil {
		s.emit(ctx, "settings:reloaded", s.GetSettings())
	}
}
