package relay

import "encoding/json"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSubscribe starts delivering a topic to the client.
	CommandSubscribe CommandKind = iota
	// CommandUnsubscribe stops a subscription.
	CommandUnsubscribe
	// CommandPublish persists and broadcasts a message.
	CommandPublish
)

// Command represents an action requested by a client.
type Command struct {
	Kind         CommandKind
	Subscription string
	Topic        string
	Destination  string
	Body         json.RawMessage
	Receipt      string
}
