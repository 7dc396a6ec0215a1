package recorder

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/bridge"
	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/metrics"
	"github.com/normanking/tutorbridge/internal/model"
	"github.com/normanking/tutorbridge/internal/sessionid"
	"github.com/normanking/tutorbridge/internal/stream"
)

// NodeID is the default registration id of the recorder.
const NodeID = "recorder"

// Recorder inputs. Participant inputs are added from the registry.
const (
	InputStatus   = "status"
	InputUserText = "user_text"
	InputResponse = "response"
)

const writeTimeout = 5 * time.Second

// userSender labels prompts forwarded by the context manager.
var userSender = bridge.Participant{InputID: InputUserText, Name: "User", Role: "user"}

// Recorder writes completed chat turns and controller status changes to a
// Store. It is owned by one goroutine.
type Recorder struct {
	store        Store
	participants *bridge.Participants
	acc          *stream.Accumulator
	current      string
	now          func() time.Time
	logger       zerolog.Logger
}

// New creates a recorder. A nil participants uses the classroom defaults.
func New(store Store, participants *bridge.Participants, logger zerolog.Logger) *Recorder {
	if participants == nil {
		participants = bridge.DefaultParticipants()
	}
	return &Recorder{
		store:        store,
		participants: participants,
		acc:          stream.NewAccumulator(),
		now:          time.Now,
		logger:       logger.With().Str("component", "recorder").Logger(),
	}
}

// Registration declares the recorder's inputs. It has no outputs.
func (r *Recorder) Registration(nodeID string) dataflow.Registration {
	if nodeID == "" {
		nodeID = NodeID
	}
	inputs := append([]string{InputStatus, InputUserText, InputResponse}, r.participants.InputIDs()...)
	return dataflow.Registration{NodeID: nodeID, Inputs: inputs}
}

// Run serves the recorder on node until ctx is done or the pipeline stops.
func (r *Recorder) Run(ctx context.Context, node dataflow.Node) error {
	return dataflow.Serve(ctx, node, r.logger, r.Handle)
}

// Handle records one pipeline input.
func (r *Recorder) Handle(ev dataflow.Event) []dataflow.Output {
	meta := ev.Params.Metadata()

	switch ev.ID {
	case InputStatus:
		r.status(ev.Data)
	case InputUserText:
		r.prompt(ev.Data, meta)
	default:
		r.chunk(ev, meta)
	}
	return nil
}

func (r *Recorder) status(d dataflow.Data) {
	text, ok := d.Text()
	if !ok {
		return
	}
	var st struct {
		State     string `json:"state"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal([]byte(text), &st); err != nil || st.State == "" {
		r.logger.Warn().Msg("Dropping malformed status")
		return
	}

	// The idle status after stop carries no id; it belongs to the ended session.
	sid := st.SessionID
	if sid == "" {
		sid = r.current
	}
	if st.State == "idle" {
		r.flushPartials()
		r.current = ""
	} else {
		r.current = st.SessionID
	}
	if sid == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.SaveSessionStatus(ctx, StatusChange{SessionID: sid, State: st.State, CreatedAt: r.now()}); err != nil {
		r.logger.Warn().Err(err).Str("session_id", sid).Msg("Failed to record status")
		return
	}
	metrics.RecorderWrites.WithLabelValues("session_status").Inc()
}

func (r *Recorder) prompt(d dataflow.Data, meta model.Metadata) {
	text, ok := dataflow.TextContent(d)
	if !ok || text == "" {
		return
	}
	var p struct {
		SessionID string `json:"session_id"`
	}
	if raw, ok := d.Text(); ok {
		_ = json.Unmarshal([]byte(raw), &p)
	}
	sid := sessionid.Resolve(p.SessionID, sessionid.FromMetadata(meta, ""), r.current, sessionid.Unknown)
	r.save(userSender, sid, text)
}

func (r *Recorder) chunk(ev dataflow.Event, meta model.Metadata) {
	if ev.ID != InputResponse && !r.participants.Known(ev.ID) {
		r.logger.Debug().Str("input", ev.ID).Msg("Ignoring unknown input")
		return
	}
	text, ok := dataflow.TextContent(ev.Data)
	if !ok {
		metrics.MalformedInputs.WithLabelValues(NodeID, ev.ID).Inc()
		return
	}

	part := r.participants.Lookup(ev.ID)
	sid := sessionid.FromMetadata(meta, sessionid.Resolve(r.current, sessionid.Unknown))
	full := r.acc.Append(stream.Key{Sender: part.Name, SessionID: sid}, text, meta.SessionDone())
	if meta.SessionDone() {
		r.save(part, sid, full)
	}
}

// flushPartials saves turns still streaming when the session stopped.
func (r *Recorder) flushPartials() {
	for key, text := range r.acc.Drain() {
		role := "assistant"
		for _, id := range r.participants.InputIDs() {
			if p := r.participants.Lookup(id); p.Name == key.Sender {
				role = p.Role
				break
			}
		}
		r.save(bridge.Participant{Name: key.Sender, Role: role}, key.SessionID, text)
	}
}

func (r *Recorder) save(p bridge.Participant, sid, content string) {
	if content == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	msg := Message{SessionID: sid, Sender: p.Name, Role: p.Role, Content: content, CreatedAt: r.now()}
	if err := r.store.SaveMessage(ctx, msg); err != nil {
		r.logger.Warn().Err(err).Str("session_id", sid).Msg("Failed to record message")
		return
	}
	metrics.RecorderWrites.WithLabelValues("messages").Inc()
}
