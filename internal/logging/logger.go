// Package logging provides structured logging with file and console output.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/model"
)

// Config holds logger configuration
type Config struct {
	Dir        string `mapstructure:"dir"`         // log file directory
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	MaxHistory int    `mapstructure:"max_history"` // entries kept in memory
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Dir:        filepath.Join(home, ".tutorbridge", "logs"),
		Level:      "info",
		MaxHistory: 1000,
		Console:    true,
		File:       true,
	}
}

// Logger wraps zerolog with file output and log history. Every component
// logger derived from it feeds the history.
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string

	mu      sync.RWMutex
	history []model.LogEntry
	maxHist int
	onLog   func(model.LogEntry) // live tail for the frontend
}

// New creates a Logger writing to a dated file and, optionally, the console.
func New(cfg Config) (*Logger, error) {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultConfig().MaxHistory
	}
	l := &Logger{
		history: make([]model.LogEntry, 0, cfg.MaxHistory),
		maxHist: cfg.MaxHistory,
	}

	writers := []io.Writer{historyWriter{l}}
	if cfg.File {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		l.logPath = filepath.Join(cfg.Dir, fmt.Sprintf("tutorbridge_%s.log", time.Now().Format("2006-01-02")))
		file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = file
		writers = append(writers, file)
	}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}

	l.zlog = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().
		Timestamp().
		Str("app", "tutorbridge").
		Logger()
	l.SetLevel(cfg.Level)

	l.zlog.Info().Str("component", "logging").Str("log_file", l.logPath).Str("level", cfg.Level).Msg("Logger initialized")
	return l, nil
}

// SetLevel changes the minimum level of every logger. Unknown levels mean
// info.
func (l *Logger) SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// SetOnLog sets a callback for real-time log streaming. fn must not log.
func (l *Logger) SetOnLog(fn func(model.LogEntry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLog = fn
}

func (l *Logger) record(entry model.LogEntry) {
	l.mu.Lock()
	l.history = append(l.history, entry)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}
	fn := l.onLog
	l.mu.Unlock()

	if fn != nil {
		fn(entry)
	}
}

// History returns up to limit recent entries, oldest first. limit <= 0
// returns everything kept.
func (l *Logger) History(limit int) []model.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}
	result := make([]model.LogEntry, limit)
	copy(result, l.history[len(l.history)-limit:])
	return result
}

// Path returns the current log file path, empty without file output.
func (l *Logger) Path() string {
	return l.logPath
}

// Component returns a zerolog.Logger with the component field set
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// Close closes the log file
func (l *Logger) Close() error {
	l.zlog.Info().Str("component", "logging").Msg("Logger shutting down")
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// historyWriter turns each zerolog JSON line into a LogEntry.
type historyWriter struct{ l *Logger }

func (w historyWriter) Write(p []byte) (int, error) {
	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		return len(p), nil
	}

	entry := model.LogEntry{
		Level:     model.ParseLogLevel(str(fields[zerolog.LevelFieldName])),
		Message:   str(fields[zerolog.MessageFieldName]),
		NodeID:    str(fields["component"]),
		Timestamp: time.Now(),
	}
	if ts, err := time.Parse(zerolog.TimeFieldFormat, str(fields[zerolog.TimestampFieldName])); err == nil {
		entry.Timestamp = ts
	}

	for _, k := range []string{zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.TimestampFieldName, "component", "app"} {
		delete(fields, k)
	}
	if len(fields) > 0 {
		entry.Metadata = make(map[string]string, len(fields))
		for k, v := range fields {
			entry.Metadata[k] = str(v)
		}
	}

	w.l.record(entry)
	return len(p), nil
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
