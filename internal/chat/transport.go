package chat

import "context"

// Transport opens connections to the pub/sub relay.
type Transport interface {
	Connect(ctx context.Context, endpoint string) (Conn, error)
}

// Conn is one live connection owned by a single session.
type Conn interface {
	// Subscribe registers onMessage for topic. onMessage is called from the
	// connection's read goroutine, one payload at a time.
	Subscribe(ctx context.Context, topic string, onMessage func(payload []byte)) (Subscription, error)
	// Publish returns once the relay has confirmed the send.
	Publish(ctx context.Context, destination string, payload []byte) error
	// Done is closed when the connection terminates for any reason.
	Done() <-chan struct{}
	// Err returns the cause of an unexpected termination, or nil after Close.
	Err() error
	Close() error
}

// Subscription is an active topic subscription.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

// HistoryFetcher loads the messages already in a room, oldest first.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, roomID string) ([]Message, error)
}
