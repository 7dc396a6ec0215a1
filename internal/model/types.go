package model

import (
	"strings"
	"time"
)

// LogLevel is the severity of a pipeline log line.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ParseLogLevel is lenient: unknown levels map to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error", "fatal", "critical":
		return LevelError
	default:
		return LevelInfo
	}
}

// Rank orders levels for filtering.
func (l LogLevel) Rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// AudioChunk is a fixed-duration slice of captured mono audio.
type AudioChunk struct {
	Samples    []float32
	SampleRate int
}

// ChatMessage is what the UI renders in the conversation view.
type ChatMessage struct {
	Content     string    `json:"content"`
	Sender      string    `json:"sender"`
	Role        string    `json:"role"`
	SessionID   string    `json:"session_id"`
	IsStreaming bool      `json:"is_streaming"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChatMessageFrom converts a chat payload.
func ChatMessageFrom(c Chat) ChatMessage {
	return ChatMessage{
		Content:     c.Content,
		Sender:      c.Sender,
		Role:        c.Role,
		SessionID:   c.SessionID,
		IsStreaming: c.IsStreaming,
		Timestamp:   time.UnixMilli(c.TimestampMs),
	}
}

// LogEntry is what the UI renders in the system log view.
type LogEntry struct {
	Level     LogLevel          `json:"level"`
	Message   string            `json:"message"`
	NodeID    string            `json:"node_id"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// LogEntryFrom converts a log payload.
func LogEntryFrom(l Log) LogEntry {
	return LogEntry{
		Level:     l.Level,
		Message:   l.Message,
		NodeID:    l.NodeID,
		Timestamp: time.UnixMilli(l.TimestampMs),
		Metadata:  l.Metadata,
	}
}
