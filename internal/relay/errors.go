package relay

// Error codes for relay errors.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnknownDestination = "unknown_destination"
	ErrCodeUnknownTopic       = "unknown_topic"
	ErrCodeRoomNotFound       = "room_not_found"
	ErrCodeInvalidMessage     = "invalid_message"
	ErrCodeAlreadySubscribed  = "already_subscribed"
	ErrCodeNotSubscribed      = "not_subscribed"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeStore              = "store_error"
)

// RelayError wraps a code and human-readable message.
type RelayError struct {
	Code    string
	Message string
}

func (e *RelayError) Error() string {
	return e.Message
}

func relayError(code, msg string) *RelayError {
	return &RelayError{Code: code, Message: msg}
}
