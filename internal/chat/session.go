// Package chat implements the live room session: connect, subscribe, send,
// receive, reconnect and teardown for a single room.
//
// All session state is owned by one goroutine. Transport callbacks, caller
// requests and completed async operations are queued on an inbox and applied
// one at a time, so status and message mutations never race.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// Session is one client's live connection state to one room. It is created by
// Open and must be released with Close by its owner.
type Session struct {
	id        string
	roomID    string
	userID    string
	transport Transport
	history   HistoryFetcher
	opts      options
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan any
	done   chan struct{}
	out    *outbox
	events chan Event

	// Owned by the run loop.
	status           Status
	messages         []Message
	pending          []PendingSend
	nextSeq          uint64
	gen              uint64
	conn             Conn
	sub              Subscription
	historyRequested bool
	dropped          uint64

	// Written once by shutdown before done is closed.
	final Snapshot
}

type dialResult struct {
	gen  uint64
	conn Conn
	sub  Subscription
	err  error
}

type payloadReceived struct {
	gen uint64
	raw []byte
}

type connLost struct {
	gen uint64
	err error
}

type historyResult struct {
	messages []Message
	err      error
}

type sendRequest struct {
	content string
	reply   chan sendReply
}

type sendReply struct {
	pending PendingSend
	err     error
}

type publishResult struct {
	id  string
	err error
}

type snapshotRequest struct {
	reply chan Snapshot
}

type closeRequest struct {
	reply chan struct{}
}

// Open validates the identifiers and starts connecting to the room.
// history may be nil, in which case no history is loaded.
func Open(roomID, userID string, transport Transport, history HistoryFetcher, opts ...Option) (*Session, error) {
	roomID = strings.TrimSpace(roomID)
	userID = strings.TrimSpace(userID)
	if roomID == "" {
		return nil, fmt.Errorf("open session: %w", ErrEmptyRoom)
	}
	if userID == "" {
		return nil, fmt.Errorf("open session: %w", ErrEmptyUser)
	}
	if transport == nil {
		return nil, fmt.Errorf("open session: %w", ErrNoTransport)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        uuid.NewString(),
		roomID:    roomID,
		userID:    userID,
		transport: transport,
		history:   history,
		opts:      o,
		ctx:       ctx,
		cancel:    cancel,
		inbox:     make(chan any),
		done:      make(chan struct{}),
		out:       newOutbox(),
		events:    make(chan Event, 16),
		status:    StatusIdle,
		nextSeq:   historySequenceSpace,
	}
	s.log = o.logger.With().
		Str("session", s.id).
		Str("room", roomID).
		Str("user", userID).
		Logger()

	go s.out.run(s.events, o.flushTimeout)

	s.gen++
	s.setStatus(StatusConnecting, nil)
	go s.connect(s.gen)
	go s.run()

	return s, nil
}

// ID returns the locally generated session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) RoomID() string { return s.roomID }

func (s *Session) UserID() string { return s.userID }

// Events delivers session events in order. The channel is closed after Close.
func (s *Session) Events() <-chan Event { return s.events }

// Send publishes content to the room. The message shows up in the view only
// when the relay broadcasts it back through the subscription.
func (s *Session) Send(ctx context.Context, content string) (PendingSend, error) {
	reply := make(chan sendReply, 1)
	select {
	case s.inbox <- sendRequest{content: content, reply: reply}:
	case <-s.done:
		return PendingSend{}, newError(KindSend, ErrCodeSessionClosed, ErrSessionClosed)
	case <-ctx.Done():
		return PendingSend{}, ctx.Err()
	}
	r := <-reply
	return r.pending, r.err
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case s.inbox <- snapshotRequest{reply: reply}:
		return <-reply
	case <-s.done:
		return s.final
	}
}

// Close cancels in-flight operations, releases the connection and moves the
// session to Closed. It is safe to call more than once.
func (s *Session) Close() error {
	reply := make(chan struct{})
	select {
	case s.inbox <- closeRequest{reply: reply}:
		<-reply
	case <-s.done:
	}
	return nil
}

func (s *Session) run() {
	defer close(s.done)
	for ev := range s.inbox {
		switch ev := ev.(type) {
		case dialResult:
			s.handleDial(ev)
		case payloadReceived:
			s.handlePayload(ev)
		case connLost:
			s.handleConnLost(ev)
		case historyResult:
			s.handleHistory(ev)
		case sendRequest:
			ev.reply <- s.handleSend(ev.content)
		case publishResult:
			s.handlePublish(ev)
		case snapshotRequest:
			ev.reply <- s.snapshot()
		case closeRequest:
			s.shutdown()
			close(ev.reply)
			return
		}
	}
}

// post hands an event to the run loop. It returns false once the session is
// shutting down; the loop stops reading the inbox as soon as ctx is cancelled.
func (s *Session) post(ev any) bool {
	select {
	case s.inbox <- ev:
		return true
	case <-s.ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

func (s *Session) emit(ev Event) {
	s.out.push(ev)
}

func (s *Session) setStatus(next Status, cause error) {
	prev := s.status
	if prev == next {
		return
	}
	s.status = next
	s.opts.metrics.Transition(next.String())

	logEvent := s.log.Info()
	if next == StatusFailed {
		logEvent = s.log.Warn()
	}
	logEvent.Err(cause).Str("from", prev.String()).Str("to", next.String()).Msg("session status changed")

	s.emit(Event{Kind: EventStatusChanged, Status: next, Previous: prev, Err: cause})
}

// Live messages are numbered above historySequenceSpace so the one-time
// history prepend can take ids below every live message.
const historySequenceSpace = 1 << 32

func (s *Session) nextSequence() uint64 {
	s.nextSeq++
	return s.nextSeq
}

// dial connects and subscribes to the room topic for generation gen.
func (s *Session) dial(gen uint64) dialResult {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.connectTimeout)
	defer cancel()

	conn, err := s.transport.Connect(ctx, s.opts.endpoint)
	if err != nil {
		code := ErrCodeConnectFailed
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code = ErrCodeConnectTimeout
			err = fmt.Errorf("%w: %w", ErrConnectTimeout, err)
		}
		return dialResult{gen: gen, err: newError(KindConnection, code, err)}
	}

	sub, err := conn.Subscribe(ctx, proto.RoomTopic(s.roomID), s.deliver(gen))
	if err != nil {
		_ = conn.Close()
		return dialResult{gen: gen, err: newError(KindSubscription, ErrCodeSubscribeFailed, err)}
	}
	return dialResult{gen: gen, conn: conn, sub: sub}
}

func (s *Session) connect(gen uint64) {
	res := s.dial(gen)
	if !s.post(res) {
		release(res.conn, res.sub)
	}
}

func (s *Session) reconnect(gen uint64) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.reconnectInitial
	b.MaxInterval = s.opts.reconnectMax

	attempt := 0
	res, err := backoff.Retry(s.ctx, func() (dialResult, error) {
		attempt++
		r := s.dial(gen)
		if r.err != nil {
			s.log.Debug().Err(r.err).Int("attempt", attempt).Msg("reconnect attempt failed")
			return r, r.err
		}
		return r, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.opts.reconnectAttempts))
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		res = dialResult{gen: gen, err: newError(KindConnection, ErrCodeReconnectExhausted, err)}
	}
	if !s.post(res) {
		release(res.conn, res.sub)
	}
}

// deliver returns the subscription callback for generation gen.
func (s *Session) deliver(gen uint64) func([]byte) {
	return func(payload []byte) {
		raw := append([]byte(nil), payload...)
		s.post(payloadReceived{gen: gen, raw: raw})
	}
}

// watch reports an unexpected termination of conn.
func (s *Session) watch(gen uint64, conn Conn) {
	select {
	case <-conn.Done():
		if err := conn.Err(); err != nil {
			s.post(connLost{gen: gen, err: err})
		}
	case <-s.ctx.Done():
	}
}

func (s *Session) fetchHistory() {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.historyTimeout)
	defer cancel()

	msgs, err := s.history.FetchHistory(ctx, s.roomID)
	if s.ctx.Err() != nil {
		return
	}
	s.post(historyResult{messages: msgs, err: err})
}

func (s *Session) publish(conn Conn, id string, body []byte) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.publishTimeout)
	defer cancel()

	err := conn.Publish(ctx, proto.SendDestination(s.roomID), body)
	s.post(publishResult{id: id, err: err})
}

func (s *Session) handleDial(ev dialResult) {
	if ev.gen != s.gen || s.status.Terminal() {
		release(ev.conn, ev.sub)
		return
	}
	if ev.err != nil {
		s.fail(ev.err)
		return
	}

	s.conn, s.sub = ev.conn, ev.sub
	go s.watch(ev.gen, ev.conn)
	s.setStatus(StatusConnected, nil)

	if !s.historyRequested {
		s.historyRequested = true
		if s.history != nil {
			go s.fetchHistory()
		}
	}
}

func (s *Session) handlePayload(ev payloadReceived) {
	if ev.gen != s.gen || s.status.Terminal() {
		return
	}

	msg, err := s.decode(ev.raw)
	if err != nil {
		s.dropped++
		s.opts.metrics.MalformedDropped()
		s.log.Warn().Err(err).Int("bytes", len(ev.raw)).Msg("dropping malformed payload")
		s.emit(Event{Kind: EventError, Err: newError(KindMalformedMessage, ErrCodeMalformedMessage, err)})
		return
	}

	s.messages = append(s.messages, msg)
	s.opts.metrics.MessageAppended()
	s.emit(Event{Kind: EventMessageAppended, Message: msg})
}

func (s *Session) decode(raw []byte) (Message, error) {
	wire, err := proto.DecodeChatMessage(raw)
	if err != nil {
		return Message{}, err
	}
	if wire.RoomID != "" && wire.RoomID != s.roomID {
		return Message{}, fmt.Errorf("%w: %q", ErrWrongRoom, wire.RoomID)
	}
	msg := MessageFromWire(wire, s.opts.now())
	msg.Room = s.roomID
	msg.SequenceID = s.nextSequence()
	return msg, nil
}

func (s *Session) handleConnLost(ev connLost) {
	if ev.gen != s.gen || s.status != StatusConnected {
		return
	}
	s.log.Warn().Err(ev.err).Uint64("generation", ev.gen).Msg("connection lost")

	conn, sub := s.conn, s.sub
	s.conn, s.sub = nil, nil
	go release(conn, sub)

	s.gen++
	if s.opts.reconnectAttempts == 0 {
		s.fail(newError(KindConnection, ErrCodeConnectFailed, ev.err))
		return
	}
	s.opts.metrics.Reconnect()
	s.setStatus(StatusReconnecting, ev.err)
	go s.reconnect(s.gen)
}

func (s *Session) handleHistory(ev historyResult) {
	if ev.err != nil {
		s.log.Warn().Err(ev.err).Msg("history fetch failed")
		s.emit(Event{Kind: EventHistoryLoadFailed, Err: newError(KindHistoryFetch, ErrCodeHistoryFailed, ev.err)})
		return
	}

	history := make([]Message, 0, len(ev.messages))
	for i, m := range ev.messages {
		m.Room = s.roomID
		m.SequenceID = uint64(i) + 1
		history = append(history, m)
	}
	s.messages = append(history, s.messages...)

	s.log.Debug().Int("count", len(history)).Msg("history loaded")
	s.emit(Event{Kind: EventHistoryLoaded, History: slices.Clone(history)})
}

func (s *Session) handleSend(content string) sendReply {
	if strings.TrimSpace(content) == "" {
		return sendReply{err: newError(KindSend, ErrCodeEmptyContent, ErrEmptyContent)}
	}
	if s.status != StatusConnected {
		return sendReply{err: newError(KindSend, ErrCodeNotConnected, fmt.Errorf("%w: status %s", ErrNotConnected, s.status))}
	}

	body, err := proto.EncodeChatMessage(s.userID, content, s.roomID)
	if err != nil {
		return sendReply{err: newError(KindSend, ErrCodeEncodeFailed, err)}
	}

	p := PendingSend{
		ID:          uuid.NewString(),
		Content:     content,
		SubmittedAt: s.opts.now(),
	}
	s.pending = append(s.pending, p)
	go s.publish(s.conn, p.ID, body)

	return sendReply{pending: p}
}

func (s *Session) handlePublish(ev publishResult) {
	idx := slices.IndexFunc(s.pending, func(p PendingSend) bool { return p.ID == ev.id })
	if idx < 0 {
		return
	}
	p := s.pending[idx]
	s.pending = slices.Delete(s.pending, idx, idx+1)

	if ev.err != nil {
		s.opts.metrics.SendFailed()
		s.log.Warn().Err(ev.err).Str("pending", p.ID).Msg("publish failed")
		s.emit(Event{Kind: EventSendFailed, Pending: p, Err: newError(KindSend, ErrCodePublishFailed, ev.err)})
		return
	}
	s.emit(Event{Kind: EventSendConfirmed, Pending: p})
}

func (s *Session) fail(cause error) {
	conn, sub := s.conn, s.sub
	s.conn, s.sub = nil, nil
	go release(conn, sub)
	s.setStatus(StatusFailed, cause)
}

func (s *Session) shutdown() {
	s.cancel()

	for _, p := range s.pending {
		s.opts.metrics.SendFailed()
		s.emit(Event{Kind: EventSendFailed, Pending: p, Err: newError(KindSend, ErrCodeSessionClosed, ErrSessionClosed)})
	}
	s.pending = nil

	release(s.conn, s.sub)
	s.conn, s.sub = nil, nil

	if !s.status.Terminal() {
		s.setStatus(StatusClosed, nil)
	}
	s.final = s.snapshot()
	s.out.seal()
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		RoomID:       s.roomID,
		UserID:       s.userID,
		Status:       s.status,
		Messages:     slices.Clone(s.messages),
		PendingSends: slices.Clone(s.pending),
		Dropped:      s.dropped,
	}
}

// release unsubscribes and disconnects, tolerating nil resources.
func release(conn Conn, sub Subscription) {
	if sub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		_ = sub.Unsubscribe(ctx)
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}
