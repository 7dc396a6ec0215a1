// Package session holds the pipeline nodes that gate when the language
// model may respond: the session controller state machine and the
// session context manager.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/metrics"
	"github.com/normanking/tutorbridge/internal/model"
	"github.com/normanking/tutorbridge/internal/sessionid"
)

// ControllerNodeID is the default registration id of the controller.
const ControllerNodeID = "session-controller"

// Controller ports.
const (
	InputControl          = "control"
	InputAudioComplete    = "audio_complete"
	InputAnalysisComplete = "analysis_complete"

	OutputControl = "control"
	OutputStatus  = "status"
	OutputLog     = "log"
)

// State is a session controller state.
type State string

const (
	StateIdle            State = "idle"
	StateActive          State = "active"
	StatePaused          State = "paused"
	StateProcessing      State = "processing"
	StateWaitingForInput State = "waiting_for_input"
)

// Output is one value a node writes to the pipeline.
type Output = dataflow.Output

type transition struct {
	from State
	cmd  Command
}

type effect struct {
	to      State
	control string // empty: no control broadcast
}

// transitions lists every defined (state, command) pair. stop and reset
// are handled separately since they apply from many states.
var transitions = map[transition]effect{
	{StateIdle, CmdStart}:               {to: StateActive, control: "start"},
	{StateActive, CmdPause}:             {to: StatePaused, control: "pause"},
	{StatePaused, CmdResume}:            {to: StateActive, control: "resume"},
	{StateProcessing, CmdAudioComplete}: {to: StateWaitingForInput, control: "ready"},
	{StateActive, CmdAnalysisComplete}:  {to: StateProcessing},
}

// Controller is the session state machine. It is owned by one goroutine.
type Controller struct {
	nodeID    string
	state     State
	sessionID string
	newID     func() string
	now       func() time.Time
	logger    zerolog.Logger
}

// NewController creates a controller in Idle.
func NewController(nodeID string, logger zerolog.Logger) *Controller {
	if nodeID == "" {
		nodeID = ControllerNodeID
	}
	return &Controller{
		nodeID: nodeID,
		state:  StateIdle,
		newID:  sessionid.New,
		now:    time.Now,
		logger: logger.With().Str("component", "session-controller").Logger(),
	}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// SessionID returns the current session id, empty when idle.
func (c *Controller) SessionID() string { return c.sessionID }

// Handle applies cmd and returns the outputs to write. Commands with no
// transition from the current state are ignored.
func (c *Controller) Handle(cmd Command) []Output {
	switch cmd {
	case CmdReset:
		return []Output{c.control("reset", c.sessionID)}
	case CmdStop:
		if c.state == StateIdle {
			c.ignore(cmd)
			return nil
		}
		ended := c.sessionID
		from := c.state
		c.state = StateIdle
		c.sessionID = ""
		return []Output{
			c.control("stop", ended),
			c.status(),
			c.log(from, cmd, ended),
		}
	}

	eff, ok := transitions[transition{c.state, cmd}]
	if !ok {
		c.ignore(cmd)
		return nil
	}

	from := c.state
	if cmd == CmdStart {
		c.sessionID = c.newID()
	}
	c.state = eff.to

	out := make([]Output, 0, 3)
	if eff.control != "" {
		out = append(out, c.control(eff.control, c.sessionID))
	}
	return append(out, c.status(), c.log(from, cmd, c.sessionID))
}

func (c *Controller) ignore(cmd Command) {
	c.logger.Debug().Str("state", string(c.state)).Str("command", string(cmd)).Msg("Ignoring command")
}

type controlMessage struct {
	Command   string `json:"command"`
	SessionID string `json:"session_id"`
}

type statusMessage struct {
	State     State  `json:"state"`
	SessionID string `json:"session_id"`
}

func (c *Controller) control(command, sid string) Output {
	return jsonOutput(OutputControl, controlMessage{Command: command, SessionID: sid}, sid)
}

func (c *Controller) status() Output {
	return jsonOutput(OutputStatus, statusMessage{State: c.state, SessionID: c.sessionID}, c.sessionID)
}

func (c *Controller) log(from State, cmd Command, sid string) Output {
	metrics.ControllerTransitions.WithLabelValues(string(from), string(c.state)).Inc()
	c.logger.Info().
		Str("from", string(from)).
		Str("to", string(c.state)).
		Str("command", string(cmd)).
		Str("session_id", sid).
		Msg("Session state changed")

	entry := model.Log{
		Level:       model.LevelInfo,
		Message:     fmt.Sprintf("session %s -> %s (%s)", from, c.state, cmd),
		NodeID:      c.nodeID,
		TimestampMs: c.now().UnixMilli(),
		Metadata: map[string]string{
			"from":       string(from),
			"to":         string(c.state),
			"command":    string(cmd),
			"session_id": sid,
		},
	}
	return jsonOutput(OutputLog, entry, sid)
}

func jsonOutput(port string, v any, sid string) Output {
	raw, _ := json.Marshal(v) // fixed-shape structs always marshal
	var params dataflow.Params
	if sid != "" {
		params = dataflow.Params{model.MetaSessionID: sid}
	}
	return Output{Port: port, Data: dataflow.String(string(raw)), Params: params}
}
