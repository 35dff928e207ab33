package chat

// EventKind is a notification the session emits to its owner.
type EventKind int

const (
	// EventStatusChanged reports a status transition. Err carries the cause of Failed or Reconnecting.
	EventStatusChanged EventKind = iota
	// EventMessageAppended reports a live message appended to the view.
	EventMessageAppended
	// EventHistoryLoaded reports history prepended to the view.
	EventHistoryLoaded
	// EventSendConfirmed reports a publish receipt for a pending send.
	EventSendConfirmed
	// EventSendFailed reports a pending send that could not be delivered.
	EventSendFailed
	// EventHistoryLoadFailed reports a non-fatal history fetch failure.
	EventHistoryLoadFailed
	// EventError reports a non-fatal error such as a dropped malformed payload.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStatusChanged:
		return "status_changed"
	case EventMessageAppended:
		return "message_appended"
	case EventHistoryLoaded:
		return "history_loaded"
	case EventSendConfirmed:
		return "send_confirmed"
	case EventSendFailed:
		return "send_failed"
	case EventHistoryLoadFailed:
		return "history_load_failed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered on Session.Events in emission order.
type Event struct {
	Kind     EventKind
	Status   Status
	Previous Status
	Message  Message
	History  []Message
	Pending  PendingSend
	Err      error
}

// Snapshot is a consistent copy of session state.
type Snapshot struct {
	RoomID       string
	UserID       string
	Status       Status
	Messages     []Message
	PendingSends []PendingSend
	Dropped      uint64
}
