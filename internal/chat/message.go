package chat

import (
	"time"

	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// Status is the lifecycle state of a Session.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen from s.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusFailed
}

// Message is a room message as shown in the session view.
// SequenceID is local to the session and increases in display order:
// history gets ids below every live message.
type Message struct {
	SequenceID uint64
	Room       string
	Sender     string
	Content    string
	Timestamp  time.Time
}

// PendingSend is a user message that was published but not yet confirmed.
type PendingSend struct {
	ID          string
	Content     string
	SubmittedAt time.Time
}

// MessageFromWire converts a wire message. receivedAt replaces a missing or
// malformed timestamp. The SequenceID is left for the session to assign.
func MessageFromWire(w proto.ChatMessage, receivedAt time.Time) Message {
	ts, ok := proto.ParseTimestamp(w.TimeStamp)
	if !ok {
		ts = receivedAt
	}
	return Message{
		Room:      w.RoomID,
		Sender:    w.Sender,
		Content:   w.Content,
		Timestamp: ts,
	}
}
