package relay

// Client is a relay connection as seen by the hub.
type Client struct {
	ID     string
	Name   string
	Events chan *Event
}

// NewClient constructs a client with an initialized event channel.
func NewClient(id, name string) *Client {
	if name == "" {
		name = id
	}
	return &Client{
		ID:     id,
		Name:   name,
		Events: make(chan *Event, 64),
	}
}
