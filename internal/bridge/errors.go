package bridge

import "fmt"

// Code classifies bridge errors.
type Code string

const (
	CodeConnectionFailed Code = "connection_failed"
	CodeAlreadyConnected Code = "already_connected"
	CodeNotConnected     Code = "not_connected"
	CodeSendFailed       Code = "send_failed"
	CodeReceiveFailed    Code = "receive_failed"
	CodeInvalidData      Code = "invalid_data"
	CodeChannelSend      Code = "channel_send"
	CodeChannelReceive   Code = "channel_receive"
	CodeTimeout          Code = "timeout"
)

// Error is returned by bridge operations.
type Error struct {
	Code   Code
	Node   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Node != "" {
		msg = e.Node + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so the sentinels below work
// with errors.Is regardless of node or detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrConnectionFailed = &Error{Code: CodeConnectionFailed}
	ErrAlreadyConnected = &Error{Code: CodeAlreadyConnected}
	ErrNotConnected     = &Error{Code: CodeNotConnected}
	ErrSendFailed       = &Error{Code: CodeSendFailed}
	ErrReceiveFailed    = &Error{Code: CodeReceiveFailed}
	ErrInvalidData      = &Error{Code: CodeInvalidData}
	ErrChannelSend      = &Error{Code: CodeChannelSend}
	ErrChannelReceive   = &Error{Code: CodeChannelReceive}
	ErrTimeout          = &Error{Code: CodeTimeout}
)

func newError(code Code, node, detail string, err error) *Error {
	return &Error{Code: code, Node: node, Detail: detail, Err: err}
}

func invalidData(node, format string, args ...any) *Error {
	return newError(CodeInvalidData, node, fmt.Sprintf(format, args...), nil)
}
