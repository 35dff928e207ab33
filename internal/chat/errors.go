package chat

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session errors.
type ErrorKind int

const (
	KindConnection ErrorKind = iota + 1
	KindSubscription
	KindSend
	KindHistoryFetch
	KindMalformedMessage
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection error"
	case KindSubscription:
		return "subscription error"
	case KindSend:
		return "send error"
	case KindHistoryFetch:
		return "history fetch error"
	case KindMalformedMessage:
		return "malformed message"
	default:
		return "session error"
	}
}

// Error codes carried by *Error.
const (
	ErrCodeConnectFailed      = "connect_failed"
	ErrCodeConnectTimeout     = "connect_timeout"
	ErrCodeReconnectExhausted = "reconnect_exhausted"
	ErrCodeSubscribeFailed    = "subscribe_failed"
	ErrCodeEmptyContent       = "empty_content"
	ErrCodeNotConnected       = "not_connected"
	ErrCodeSessionClosed      = "session_closed"
	ErrCodePublishFailed      = "publish_failed"
	ErrCodeEncodeFailed       = "encode_failed"
	ErrCodeHistoryFailed      = "history_failed"
	ErrCodeMalformedMessage   = "malformed_message"
)

var (
	ErrEmptyRoom      = errors.New("room id is required")
	ErrEmptyUser      = errors.New("user id is required")
	ErrNoTransport    = errors.New("transport is required")
	ErrEmptyContent   = errors.New("message content is empty")
	ErrNotConnected   = errors.New("session is not connected")
	ErrSessionClosed  = errors.New("session is closed")
	ErrWrongRoom      = errors.New("message belongs to another room")
	ErrConnectTimeout = errors.New("connect timed out")
)

// Error is a classified session error.
type Error struct {
	Kind ErrorKind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", e.Kind, e.Code)
	}
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// IsKind reports whether err is a session *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
