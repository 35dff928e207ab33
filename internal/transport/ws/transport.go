// Package ws implements the session transport over a relay websocket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

const readLimit = 1 << 20

var ErrConnClosed = errors.New("connection closed")

// Transport dials the relay and performs the hello handshake as User.
type Transport struct {
	User string
	log  *zerolog.Logger
}

// New builds a transport identifying itself as user.
func New(user string, logger *zerolog.Logger) *Transport {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Transport{User: user, log: logger}
}

// Connect dials endpoint and waits for the relay to acknowledge the hello.
func (t *Transport) Connect(ctx context.Context, endpoint string) (chat.Conn, error) {
	ws, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	ws.SetReadLimit(readLimit)

	session, err := handshake(ctx, ws, t.User)
	if err != nil {
		ws.Close(websocket.StatusPolicyViolation, "handshake failed")
		return nil, err
	}

	logger := t.log.With().Str("relay_session", session).Logger()
	c := newConn(ws, &logger)
	go c.readLoop()

	logger.Debug().Str("endpoint", endpoint).Msg("relay connected")
	return c, nil
}

func handshake(ctx context.Context, ws *websocket.Conn, user string) (string, error) {
	hello, err := proto.NewFrame(proto.TypeHello, proto.HelloData{User: user, Protocol: proto.ProtocolVersion})
	if err != nil {
		return "", err
	}
	if err := wsjson.Write(ctx, ws, hello); err != nil {
		return "", fmt.Errorf("write hello: %w", err)
	}

	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			return "", fmt.Errorf("read hello ack: %w", err)
		}
		switch frame.Type {
		case proto.TypeConnected:
			var data proto.ConnectedData
			if err := frame.Decode(&data); err != nil {
				return "", err
			}
			if data.Protocol != proto.ProtocolVersion {
				return "", fmt.Errorf("unsupported relay protocol %d", data.Protocol)
			}
			return data.Session, nil
		case proto.TypeError:
			if frame.Error != nil {
				return "", fmt.Errorf("hello rejected: %w", frame.Error)
			}
			return "", errors.New("hello rejected")
		}
	}
}

// Conn is a relay connection. Topic payloads are dispatched from a single
// read goroutine in arrival order.
type Conn struct {
	ws  *websocket.Conn
	log *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	subs     map[string]func([]byte)
	receipts map[string]chan error
	closing  bool
	err      error
	done     chan struct{}

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, logger *zerolog.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:       ws,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[string]func([]byte)),
		receipts: make(map[string]chan error),
		done:     make(chan struct{}),
	}
}

func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Subscribe registers onMessage and waits for the relay's receipt.
func (c *Conn) Subscribe(ctx context.Context, topic string, onMessage func([]byte)) (chat.Subscription, error) {
	id := uuid.NewString()

	c.mu.Lock()
	c.subs[id] = onMessage
	c.mu.Unlock()

	frame, err := proto.NewFrame(proto.TypeSubscribe, proto.SubscribeData{ID: id, Topic: topic})
	if err == nil {
		err = c.request(ctx, id, frame)
	}
	if err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return &subscription{conn: c, id: id}, nil
}

// Publish sends payload to destination and waits for the relay's receipt.
func (c *Conn) Publish(ctx context.Context, destination string, payload []byte) error {
	receipt := uuid.NewString()
	frame, err := proto.NewFrame(proto.TypeSend, proto.SendData{
		Destination: destination,
		Body:        payload,
		Receipt:     receipt,
	})
	if err != nil {
		return err
	}
	if err := c.request(ctx, receipt, frame); err != nil {
		return fmt.Errorf("publish %s: %w", destination, err)
	}
	return nil
}

// Close performs a normal websocket close. It does not report as a lost connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()

		err = c.ws.Close(websocket.StatusNormalClosure, "bye")
		c.cancel()
		<-c.done
	})
	return err
}

func (c *Conn) request(ctx context.Context, receipt string, frame proto.Frame) error {
	ch := make(chan error, 1)

	c.mu.Lock()
	if c.isDone() {
		c.mu.Unlock()
		return ErrConnClosed
	}
	c.receipts[receipt] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.receipts, receipt)
		c.mu.Unlock()
	}()

	if err := wsjson.Write(ctx, c.ws, frame); err != nil {
		return fmt.Errorf("write %s: %w", frame.Type, err)
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrConnClosed
	}
}

func (c *Conn) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) resolve(receipt string, err error) {
	c.mu.Lock()
	ch, ok := c.receipts[receipt]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

func (c *Conn) readLoop() {
	for {
		var frame proto.Frame
		if err := wsjson.Read(c.ctx, c.ws, &frame); err != nil {
			c.terminate(err)
			return
		}

		switch frame.Type {
		case proto.TypeMessage:
			var data proto.MessageData
			if err := frame.Decode(&data); err != nil {
				c.log.Warn().Err(err).Msg("bad message frame")
				continue
			}
			c.mu.Lock()
			onMessage := c.subs[data.Subscription]
			c.mu.Unlock()
			if onMessage == nil {
				c.log.Debug().Str("subscription", data.Subscription).Msg("message for unknown subscription")
				continue
			}
			onMessage(data.Body)
		case proto.TypeReceipt:
			var data proto.ReceiptData
			if err := frame.Decode(&data); err != nil {
				c.log.Warn().Err(err).Msg("bad receipt frame")
				continue
			}
			c.resolve(data.ID, nil)
		case proto.TypeError:
			if frame.Error == nil {
				continue
			}
			if frame.Error.Receipt != "" {
				c.resolve(frame.Error.Receipt, frame.Error)
				continue
			}
			c.log.Warn().Str("code", frame.Error.Code).Str("msg", frame.Error.Msg).Msg("relay error")
		default:
			c.log.Debug().Str("type", frame.Type).Msg("ignoring frame")
		}
	}
}

func (c *Conn) terminate(cause error) {
	c.mu.Lock()
	if !c.closing {
		status := websocket.CloseStatus(cause)
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			c.err = fmt.Errorf("relay closed connection: %w", cause)
		} else {
			c.err = fmt.Errorf("connection lost: %w", cause)
		}
		c.log.Warn().Err(cause).Msg("relay connection lost")
	}
	c.subs = make(map[string]func([]byte))
	c.mu.Unlock()

	c.cancel()
	close(c.done)
}

type subscription struct {
	conn *Conn
	id   string
	once sync.Once
}

// Unsubscribe stops delivery immediately and tells the relay.
func (s *subscription) Unsubscribe(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.conn.mu.Lock()
		delete(s.conn.subs, s.id)
		s.conn.mu.Unlock()

		if s.conn.isDone() {
			return
		}
		frame, ferr := proto.NewFrame(proto.TypeUnsubscribe, proto.UnsubscribeData{ID: s.id})
		if ferr != nil {
			err = ferr
			return
		}
		if werr := wsjson.Write(ctx, s.conn.ws, frame); werr != nil {
			err = fmt.Errorf("write unsubscribe: %w", werr)
		}
	})
	return err
}
