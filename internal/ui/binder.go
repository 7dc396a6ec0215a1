package ui

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/normanking/tutorbridge/internal/audio"
	"github.com/normanking/tutorbridge/internal/bridge"
	"github.com/normanking/tutorbridge/internal/bus"
	"github.com/normanking/tutorbridge/internal/logging"
	"github.com/normanking/tutorbridge/internal/model"
)

// EmitFunc sends a named event to the frontend. runtime.EventsEmit in the
// app, a recorder in tests.
type EmitFunc func(ctx context.Context, name string, data ...any)

// Bridges is the set of bridges the window drives. Nil entries are
// skipped.
type Bridges struct {
	Mic    *bridge.MicInputBridge
	Text   *bridge.TextInputBridge
	Log    *bridge.SystemLogBridge
	Player *bridge.AudioPlayerBridge
	Prompt *bridge.PromptInputBridge
}

// All returns the non-nil bridges in a fixed order.
func (s Bridges) All() []bridge.Bridge {
	var out []bridge.Bridge
	if s.Mic != nil {
		out = append(out, s.Mic)
	}
	if s.Text != nil {
		out = append(out, s.Text)
	}
	if s.Log != nil {
		out = append(out, s.Log)
	}
	if s.Player != nil {
		out = append(out, s.Player)
	}
	if s.Prompt != nil {
		out = append(out, s.Prompt)
	}
	return out
}

// ErrNoBridge is returned by methods whose bridge is not configured.
var ErrNoBridge = errors.New("bridge not configured")

// Binder exposes the bridges to the Wails frontend and forwards bus events
// to it.
type Binder struct {
	ctx      context.Context
	emit     EmitFunc
	eventBus *bus.EventBus
	bridges  Bridges
	capture  *audio.Capture
	appLog   *logging.Logger
	logger   zerolog.Logger

	mu       sync.Mutex
	unsub    func()
	stopPump context.CancelFunc
	pumpDone chan struct{}
}

// NewBinder creates the binder. capture and appLog may be nil.
func NewBinder(eventBus *bus.EventBus, bridges Bridges, capture *audio.Capture, appLog *logging.Logger, logger zerolog.Logger) *Binder {
	return &Binder{
		emit:     runtime.EventsEmit,
		eventBus: eventBus,
		bridges:  bridges,
		capture:  capture,
		appLog:   appLog,
		logger:   logger.With().Str("component", "ui-binder").Logger(),
	}
}

// frontendEvents maps bus events to frontend event names. Bridge events
// are named per node.
var frontendEvents = map[bus.EventType]string{
	bus.EventTypeChatMessage:    "chat:message",
	bus.EventTypeLogEntry:       "log:entry",
	bus.EventTypePlayback:       "audio:playback",
	bus.EventTypeAudioLevel:     "audio:level",
	bus.EventTypeCaptureStarted: "audio:capture",
	bus.EventTypeCaptureStopped: "audio:capture",
	bus.EventTypeSessionStatus:  "session:status",
}

var bridgeEvents = map[bus.EventType]string{
	bus.EventTypeBridgeState: "state",
	bus.EventTypeBridgeError: "error",
	bus.EventTypeBridgeData:  "data",
}

// Bind sets the Wails runtime context and starts forwarding events.
func (b *Binder) Bind(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctx = ctx

	types := make([]bus.EventType, 0, len(frontendEvents)+len(bridgeEvents))
	for t := range frontendEvents {
		types = append(types, t)
	}
	for t := range bridgeEvents {
		types = append(types, t)
	}
	if b.unsub != nil {
		b.unsub()
	}
	b.unsub = b.eventBus.SubscribeMultiple(types, b.forward)

	if b.appLog != nil {
		b.appLog.SetOnLog(func(entry model.LogEntry) {
			b.emit(ctx, "log:app", entry)
		})
	}
}

func (b *Binder) forward(ev bus.Event) {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx == nil {
		return
	}

	if kind, ok := bridgeEvents[ev.Type]; ok {
		data := make(map[string]any, len(ev.Data)+1)
		for k, v := range ev.Data {
			data[k] = v
		}
		data["type"] = kind
		b.emit(ctx, "bridge:"+ev.Source, data)
		return
	}
	if name, ok := frontendEvents[ev.Type]; ok {
		data := ev.Data
		if ev.Type == bus.EventTypeCaptureStarted || ev.Type == bus.EventTypeCaptureStopped {
			data = map[string]any{"capturing": ev.Type == bus.EventTypeCaptureStarted}
		}
		b.emit(ctx, name, data)
	}
}

func (b *Binder) find(kind string) (bridge.Bridge, error) {
	k, err := bridge.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	for _, br := range b.bridges.All() {
		if br.Kind() == k {
			return br, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoBridge, kind)
}

// Connect connects the bridge of kind.
func (b *Binder) Connect(kind string) error {
	br, err := b.find(kind)
	if err != nil {
		return err
	}
	return br.Connect()
}

// Disconnect disconnects the bridge of kind.
func (b *Binder) Disconnect(kind string) error {
	br, err := b.find(kind)
	if err != nil {
		return err
	}
	return br.Disconnect()
}

// ConnectAll connects every bridge and reports all failures.
func (b *Binder) ConnectAll() error {
	var errs []error
	for _, br := range b.bridges.All() {
		if err := br.Connect(); err != nil && !errors.Is(err, bridge.ErrAlreadyConnected) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BridgeStates returns each bridge's state keyed by node id.
func (b *Binder) BridgeStates() map[string]string {
	out := make(map[string]string)
	for _, br := range b.bridges.All() {
		out[br.NodeID()] = br.State().String()
	}
	return out
}

// SendText sends typed user text.
func (b *Binder) SendText(text string) error {
	if b.bridges.Text == nil {
		return ErrNoBridge
	}
	return b.bridges.Text.SendText(text)
}

// SendCommand sends a session command such as start or stop.
func (b *Binder) SendCommand(command string) error {
	if b.bridges.Text == nil {
		return ErrNoBridge
	}
	return b.bridges.Text.SendCommand(command, nil)
}

// SendTopic sets the conversation topic.
func (b *Binder) SendTopic(sessionID, topic string, targetWords []string) error {
	if b.bridges.Prompt == nil {
		return ErrNoBridge
	}
	return b.bridges.Prompt.SendTopic(sessionID, topic, targetWords)
}

// ResetContext clears the conversation context.
func (b *Binder) ResetContext() error {
	if b.bridges.Prompt == nil {
		return ErrNoBridge
	}
	return b.bridges.Prompt.Reset()
}

// PlaybackFinished reports that the frontend finished playing a response.
func (b *Binder) PlaybackFinished(sessionID string) error {
	if b.bridges.Player == nil {
		return ErrNoBridge
	}
	return b.bridges.Player.PlaybackFinished(sessionID)
}

// PipelineLogs returns recent pipeline log entries.
func (b *Binder) PipelineLogs(limit int) []model.LogEntry {
	if b.bridges.Log == nil {
		return nil
	}
	return b.bridges.Log.History(limit)
}

// AppLogs returns recent application log entries.
func (b *Binder) AppLogs(limit int) []model.LogEntry {
	if b.appLog == nil {
		return nil
	}
	return b.appLog.History(limit)
}

// StartCapture opens the microphone and streams chunks to the mic bridge.
func (b *Binder) StartCapture() error {
	if b.capture == nil || b.bridges.Mic == nil {
		return ErrNoBridge
	}

	b.mu.Lock()
	parent := b.ctx
	b.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	// Start publishes on the bus, whose handler takes b.mu.
	if err := b.capture.Start(parent); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	b.mu.Lock()
	b.stopPump, b.pumpDone = cancel, done
	b.mu.Unlock()
	go func() {
		defer close(done)
		sent := audio.Pump(ctx, b.capture.Chunks(), b.bridges.Mic, b.logger)
		b.logger.Debug().Int("chunks", sent).Msg("Capture pump finished")
	}()
	return nil
}

// StopCapture closes the microphone.
func (b *Binder) StopCapture() error {
	if b.capture == nil {
		return ErrNoBridge
	}

	b.mu.Lock()
	cancel, done := b.stopPump, b.pumpDone
	b.stopPump, b.pumpDone = nil, nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return b.capture.Stop()
}

// AudioLevels returns the current input level and peak.
func (b *Binder) AudioLevels() audio.Levels {
	if b.capture == nil {
		return audio.Levels{}
	}
	return b.capture.Levels()
}

// Shutdown stops capture, forwarding and every bridge.
func (b *Binder) Shutdown() {
	if b.capture != nil {
		if err := b.StopCapture(); err != nil {
			b.logger.Debug().Err(err).Msg("Stop capture on shutdown")
		}
	}

	b.mu.Lock()
	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}
	b.mu.Unlock()
	if b.appLog != nil {
		b.appLog.SetOnLog(nil)
	}

	for _, br := range b.bridges.All() {
		if err := br.Close(); err != nil {
			b.logger.Warn().Err(err).Str("node", br.NodeID()).Msg("Bridge close failed")
		}
	}
}
