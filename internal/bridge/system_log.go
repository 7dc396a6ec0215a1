package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/model"
)

// InputLog receives log lines from pipeline nodes.
const InputLog = "log"

// SystemLogBridge collects pipeline log lines for the UI log view.
type SystemLogBridge struct {
	*base
	entries *Queue[model.LogEntry]
	control *Queue[model.Control]
	now     func() time.Time

	histMu  sync.RWMutex
	history []model.LogEntry
}

// NewSystemLog creates a system-log bridge.
func NewSystemLog(opts Options) *SystemLogBridge {
	opts = opts.withDefaults(KindSystemLog)
	b := &SystemLogBridge{
		base:    newBase(KindSystemLog, opts, []string{InputLog, InputStatus}, []string{OutputControl}),
		entries: NewQueue[model.LogEntry](opts.NodeID, QueueLog, opts.queue(QueueLog)),
		control: NewQueue[model.Control](opts.NodeID, QueueControl, opts.queue(QueueControl)),
		now:     time.Now,
	}
	b.h = b
	return b
}

// Entries exposes accepted log entries in arrival order.
func (b *SystemLogBridge) Entries() <-chan model.LogEntry { return b.entries.C() }

// History returns up to n of the most recent entries, oldest first.
// n <= 0 returns everything retained.
func (b *SystemLogBridge) History(n int) []model.LogEntry {
	b.histMu.RLock()
	defer b.histMu.RUnlock()
	start := 0
	if n > 0 && n < len(b.history) {
		start = len(b.history) - n
	}
	return append([]model.LogEntry(nil), b.history[start:]...)
}

// Send accepts control payloads on "control".
func (b *SystemLogBridge) Send(outputID string, p model.Payload) error {
	if c, ok := p.(model.Control); ok && outputID == OutputControl {
		return enqueue(b.base, b.control, c)
	}
	return b.unknownOutput(outputID, p)
}

func (b *SystemLogBridge) reset() {}

func (b *SystemLogBridge) flush(node dataflow.Node) {
	for {
		c, ok := b.control.TryPop()
		if !ok {
			return
		}
		data, err := controlJSON(c)
		if err != nil {
			b.logger.Warn().Err(err).Str("command", c.Command).Msg("Cannot encode control")
			continue
		}
		b.write(node, OutputControl, data, nil)
	}
}

func (b *SystemLogBridge) handleInput(ev dataflow.Event) {
	if !strings.Contains(ev.ID, InputLog) {
		b.received(ev)
		return
	}

	meta := ev.Params.Metadata()
	entry, err := b.parseLog(ev, meta)
	if err != nil {
		b.malformed(ev, err)
		return
	}
	if entry.Level.Rank() < b.opts.MinLogLevel.Rank() {
		return
	}

	b.emit(Event{Type: EventDataReceived, InputID: ev.ID, Payload: entry, Metadata: meta})

	le := model.LogEntryFrom(entry)
	b.remember(le)
	if err := b.entries.Push(le); err != nil {
		b.logger.Warn().Err(err).Msg("Log queue full, dropping entry")
	}
}

func (b *SystemLogBridge) remember(e model.LogEntry) {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	b.history = append(b.history, e)
	if over := len(b.history) - b.opts.LogHistory; over > 0 {
		b.history = append(b.history[:0:0], b.history[over:]...)
	}
}

type wireLog struct {
	Level       string         `json:"level"`
	Message     *string        `json:"message"`
	NodeID      string         `json:"node_id"`
	Timestamp   any            `json:"timestamp"`
	TimestampMs int64          `json:"timestamp_ms"`
	Metadata    map[string]any `json:"metadata"`
}

// parseLog accepts a JSON log object or a plain text line.
func (b *SystemLogBridge) parseLog(ev dataflow.Event, meta model.Metadata) (model.Log, error) {
	text, err := textContentRaw(ev.Data)
	if err != nil {
		return model.Log{}, err
	}

	fallbackNode := meta.Value(model.MetaNodeID)
	if fallbackNode == "" {
		fallbackNode = ev.ID
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		var w wireLog
		if err := json.Unmarshal([]byte(trimmed), &w); err == nil && w.Message != nil {
			entry := model.Log{
				Level:       model.ParseLogLevel(w.Level),
				Message:     *w.Message,
				NodeID:      w.NodeID,
				TimestampMs: b.timestamp(w),
			}
			if entry.NodeID == "" {
				entry.NodeID = fallbackNode
			}
			if len(w.Metadata) > 0 {
				entry.Metadata = make(map[string]string, len(w.Metadata))
				for k, v := range w.Metadata {
					entry.Metadata[k] = stringify(v)
				}
			}
			return entry, nil
		}
	}

	return model.Log{
		Level:       model.LevelInfo,
		Message:     text,
		NodeID:      fallbackNode,
		TimestampMs: b.now().UnixMilli(),
	}, nil
}

func (b *SystemLogBridge) timestamp(w wireLog) int64 {
	if w.TimestampMs > 0 {
		return w.TimestampMs
	}
	switch t := w.Timestamp.(type) {
	case float64:
		if t > 1e12 {
			return int64(t)
		}
		return int64(t * 1000)
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts.UnixMilli()
		}
	}
	return b.now().UnixMilli()
}

func textContentRaw(d dataflow.Data) (string, error) {
	if d.Kind == dataflow.DataFloats {
		return "", errNotText
	}
	s, _ := d.Text()
	if d.Kind == dataflow.DataBytes && !utf8.ValidString(s) {
		return "", errNotText
	}
	return s, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}
