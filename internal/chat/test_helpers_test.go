package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errDropped = errors.New("connection reset by peer")

type fakeSub struct {
	conn         *fakeConn
	unsubscribed bool
}

func (s *fakeSub) Unsubscribe(context.Context) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	s.unsubscribed = true
	s.conn.onMessage = nil
	return nil
}

type fakeConn struct {
	mu           sync.Mutex
	topic        string
	onMessage    func([]byte)
	published    []published
	publishErr   error
	publishGate  chan struct{}
	subscribeErr error
	done         chan struct{}
	err          error
	closed       bool
	once         sync.Once
}

type published struct {
	destination string
	payload     []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{done: make(chan struct{})}
}

func (c *fakeConn) Subscribe(_ context.Context, topic string, onMessage func([]byte)) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}
	c.topic = topic
	c.onMessage = onMessage
	return &fakeSub{conn: c}, nil
}

func (c *fakeConn) Publish(ctx context.Context, destination string, payload []byte) error {
	c.mu.Lock()
	gate, err := c.publishGate, c.publishErr
	c.published = append(c.published, published{destination: destination, payload: append([]byte(nil), payload...)})
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
	return nil
}

// push delivers a payload through the active subscription.
func (c *fakeConn) push(t *testing.T, raw string) {
	t.Helper()
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn == nil {
		t.Fatalf("push on connection without subscription")
	}
	fn([]byte(raw))
}

// drop simulates an unexpected disconnect.
func (c *fakeConn) drop(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) publishedPayloads() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

type fakeTransport struct {
	mu           sync.Mutex
	conns        []*fakeConn
	connectErr   error
	subscribeErr error
	block        bool
	gate         chan struct{}
	endpoints    []string
}

func (tr *fakeTransport) Connect(ctx context.Context, endpoint string) (Conn, error) {
	tr.mu.Lock()
	block, gate, connectErr := tr.block, tr.gate, tr.connectErr
	tr.endpoints = append(tr.endpoints, endpoint)
	tr.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if gate != nil {
		<-gate
	}
	if connectErr != nil {
		return nil, connectErr
	}

	c := newFakeConn()
	tr.mu.Lock()
	c.subscribeErr = tr.subscribeErr
	tr.conns = append(tr.conns, c)
	tr.mu.Unlock()
	return c, nil
}

func (tr *fakeTransport) setConnectErr(err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.connectErr = err
}

func (tr *fakeTransport) conn(t *testing.T, i int) *fakeConn {
	t.Helper()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if i >= len(tr.conns) {
		t.Fatalf("connection %d not opened (have %d)", i, len(tr.conns))
	}
	return tr.conns[i]
}

func (tr *fakeTransport) connCount() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.conns)
}

type fakeHistory struct {
	messages []Message
	err      error
	gate     chan struct{}
}

func (h *fakeHistory) FetchHistory(ctx context.Context, _ string) ([]Message, error) {
	if h.gate != nil {
		select {
		case <-h.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return h.messages, h.err
}

func openSession(t *testing.T, tr Transport, history HistoryFetcher, opts ...Option) *Session {
	t.Helper()

	opts = append([]Option{WithReconnect(3, time.Millisecond, 5*time.Millisecond)}, opts...)
	s, err := Open("room1", "alice", tr, history, opts...)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %v", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("expected event kind %v not received", kind)
		}
	}
}

func mustStatus(t *testing.T, ch <-chan Event, status Status) Event {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for status %v", status)
			}
			if ev.Kind == EventStatusChanged && ev.Status == status {
				return ev
			}
		case <-timeout:
			t.Fatalf("expected status %v not reached", status)
		}
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
