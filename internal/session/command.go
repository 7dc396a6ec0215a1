package session

import (
	"strings"

	"github.com/normanking/tutorbridge/internal/dataflow"
)

// Command is a controller input.
type Command string

const (
	CmdStart            Command = "start"
	CmdStop             Command = "stop"
	CmdReset            Command = "reset"
	CmdPause            Command = "pause"
	CmdResume           Command = "resume"
	CmdAudioComplete    Command = "audio_complete"
	CmdAnalysisComplete Command = "analysis_complete"
)

var commands = map[string]Command{
	"start":             CmdStart,
	"stop":              CmdStop,
	"reset":             CmdReset,
	"pause":             CmdPause,
	"resume":            CmdResume,
	"audio_complete":    CmdAudioComplete,
	"analysis_complete": CmdAnalysisComplete,
}

// ParseCommand is case-insensitive and ignores surrounding whitespace.
func ParseCommand(s string) (Command, bool) {
	cmd, ok := commands[strings.ToLower(strings.TrimSpace(s))]
	return cmd, ok
}

// CommandFromData accepts "start", "\"start\"", {"command":"start"} and
// the control payload shape {"command":"start","params":{...}}.
func CommandFromData(d dataflow.Data) (Command, bool) {
	text, ok := inputText(d)
	if !ok {
		return "", false
	}
	return ParseCommand(text)
}

// inputText extracts the text carried by d. JSON strings are unquoted and
// objects contribute "text", "content" or "command".
func inputText(d dataflow.Data) (string, bool) {
	return dataflow.TextContent(d, "text", "content", "command")
}
