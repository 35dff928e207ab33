// Package relay is a small pub/sub hub for room topics. A single goroutine
// owns all topic and subscription state; connections talk to it through
// channels.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

type clientCommand struct {
	client *Client
	cmd    *Command
}

// Hub routes publishes to topic subscribers and persists room messages.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	stopped    chan struct{}

	clients map[*Client]map[string]string // subscription id -> topic
	topics  map[string]*Topic

	store   store.Store
	log     *zerolog.Logger
	metrics *metrics.Relay
	now     func() time.Time
}

// NewHub creates a hub. st may be nil, in which case rooms are not checked
// and messages are not persisted.
func NewHub(st store.Store, logger *zerolog.Logger, m *metrics.Relay) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 64),
		stopped:    make(chan struct{}),
		clients:    make(map[*Client]map[string]string),
		topics:     make(map[string]*Topic),
		store:      st,
		log:        logger,
		metrics:    m,
		now:        time.Now,
	}
}

// RegisterClient adds a client to the hub.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.stopped:
	}
}

// UnregisterClient drops the client's subscriptions and closes its event channel.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Submit queues a command from c.
func (h *Hub) Submit(c *Client, cmd *Command) {
	select {
	case h.commands <- clientCommand{client: c, cmd: cmd}:
	case <-h.stopped:
	}
}

// Run processes hub traffic until ctx is cancelled. It must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = make(map[string]string)
		case c := <-h.unregister:
			h.removeClient(c)
		case cc := <-h.commands:
			if _, ok := h.clients[cc.client]; !ok {
				continue
			}
			h.handle(ctx, cc.client, cc.cmd)
		}
	}
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandSubscribe:
		h.subscribe(c, cmd)
	case CommandUnsubscribe:
		h.unsubscribe(c, cmd)
	case CommandPublish:
		h.publish(ctx, c, cmd)
	default:
		h.sendError(c, cmd.Receipt, relayError(ErrCodeBadRequest, "unknown command"))
	}
}

func (h *Hub) subscribe(c *Client, cmd *Command) {
	if cmd.Subscription == "" {
		h.sendError(c, cmd.Subscription, relayError(ErrCodeBadRequest, "subscription id is required"))
		return
	}
	if _, ok := proto.RoomFromTopic(cmd.Topic); !ok {
		h.sendError(c, cmd.Subscription, relayError(ErrCodeUnknownTopic, "unknown topic "+cmd.Topic))
		return
	}
	subs := h.clients[c]
	if _, exists := subs[cmd.Subscription]; exists {
		h.sendError(c, cmd.Subscription, relayError(ErrCodeAlreadySubscribed, "subscription id already in use"))
		return
	}

	topic, ok := h.topics[cmd.Topic]
	if !ok {
		topic = NewTopic(cmd.Topic)
		h.topics[cmd.Topic] = topic
	}
	topic.Add(c, cmd.Subscription)
	subs[cmd.Subscription] = cmd.Topic
	h.metrics.Subscribed()

	h.log.Debug().Str("client_id", c.ID).Str("topic", cmd.Topic).Msg("subscribed")
	h.deliver(c, &Event{Kind: EventReceipt, Receipt: cmd.Subscription})
}

func (h *Hub) unsubscribe(c *Client, cmd *Command) {
	subs := h.clients[c]
	name, ok := subs[cmd.Subscription]
	if !ok {
		h.sendError(c, "", relayError(ErrCodeNotSubscribed, "unknown subscription"))
		return
	}
	delete(subs, cmd.Subscription)
	if topic, ok := h.topics[name]; ok {
		topic.Remove(c, cmd.Subscription)
		if topic.Empty() {
			delete(h.topics, name)
		}
	}
	h.metrics.Unsubscribed(1)
}

func (h *Hub) publish(ctx context.Context, c *Client, cmd *Command) {
	room, ok := proto.RoomFromDestination(cmd.Destination)
	if !ok {
		h.sendError(c, cmd.Receipt, relayError(ErrCodeUnknownDestination, "unknown destination "+cmd.Destination))
		return
	}

	msg, err := proto.DecodeChatMessage(cmd.Body)
	if err != nil {
		h.sendError(c, cmd.Receipt, relayError(ErrCodeInvalidMessage, err.Error()))
		return
	}
	if msg.RoomID != "" && msg.RoomID != room {
		h.sendError(c, cmd.Receipt, relayError(ErrCodeBadRequest, "roomId does not match destination"))
		return
	}

	now := h.now()
	if h.store != nil {
		if rerr := h.persist(ctx, room, msg, now); rerr != nil {
			h.sendError(c, cmd.Receipt, rerr)
			return
		}
	}

	msg.RoomID = room
	msg.TimeStamp = proto.FormatTimestamp(now)
	body, err := json.Marshal(msg)
	if err != nil {
		h.sendError(c, cmd.Receipt, relayError(ErrCodeInvalidMessage, err.Error()))
		return
	}

	h.metrics.Published()
	if cmd.Receipt != "" {
		h.deliver(c, &Event{Kind: EventReceipt, Receipt: cmd.Receipt})
	}
	h.broadcast(proto.RoomTopic(room), body)
}

func (h *Hub) persist(ctx context.Context, room string, msg proto.ChatMessage, now time.Time) *RelayError {
	r, err := h.store.GetRoomByName(ctx, room)
	if errors.Is(err, store.ErrNotFound) {
		return relayError(ErrCodeRoomNotFound, "room not found")
	}
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to load room")
		return relayError(ErrCodeStore, "failed to load room")
	}

	if err := h.store.SaveMessage(ctx, &store.Message{
		RoomID:    r.ID,
		Sender:    msg.Sender,
		Body:      msg.Content,
		CreatedAt: now,
	}); err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to save message")
		return relayError(ErrCodeStore, "failed to save message")
	}
	return nil
}

func (h *Hub) broadcast(name string, body json.RawMessage) {
	topic, ok := h.topics[name]
	if !ok {
		return
	}
	topic.Each(func(c *Client, id string) {
		h.deliver(c, &Event{Kind: EventMessage, Subscription: id, Topic: name, Body: body})
	})
}

func (h *Hub) removeClient(c *Client) {
	subs, ok := h.clients[c]
	if !ok {
		return
	}
	for _, name := range subs {
		if topic, ok := h.topics[name]; ok {
			topic.RemoveClient(c)
			if topic.Empty() {
				delete(h.topics, name)
			}
		}
	}
	h.metrics.Unsubscribed(len(subs))
	delete(h.clients, c)
	close(c.Events)
}

func (h *Hub) sendError(c *Client, receipt string, err *RelayError) {
	h.deliver(c, &Event{Kind: EventError, Receipt: receipt, Error: err})
}

func (h *Hub) deliver(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
		// Drop if slow consumer.
		h.metrics.DeliveryDropped()
		h.log.Warn().Str("client_id", c.ID).Msg("dropping event for slow client")
	}
}
