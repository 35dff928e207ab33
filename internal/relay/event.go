package relay

import "encoding/json"

// EventKind is a notification the hub emits to clients.
type EventKind int

const (
	// EventMessage delivers a broadcast body to one subscription.
	EventMessage EventKind = iota
	// EventReceipt confirms a subscribe or publish.
	EventReceipt
	// EventError reports a rejected command.
	EventError
)

// Event is sent to clients to describe what happened in the relay.
type Event struct {
	Kind         EventKind
	Subscription string
	Topic        string
	Body         json.RawMessage
	Receipt      string
	Error        *RelayError
}
