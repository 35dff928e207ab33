package proto

import (
	"encoding/json"
	"fmt"
	"strings"
)

const ProtocolVersion = 1

// Frame types exchanged over the relay websocket.
const (
	TypeHello       = "hello"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeSend        = "send"

	TypeConnected = "connected"
	TypeMessage   = "message"
	TypeReceipt   = "receipt"
	TypeError     = "error"
)

const (
	roomTopicPrefix   = "/topic/room/"
	sendMessagePrefix = "/app/sendMessage/"
)

// Frame is the envelope for every websocket message in either direction.
type Frame struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// NewFrame marshals data into a frame of the given type.
func NewFrame(typ string, data any) (Frame, error) {
	if data == nil {
		return Frame{Type: typ}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s frame: %w", typ, err)
	}
	return Frame{Type: typ, Data: raw}, nil
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s frame has no data", f.Type)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s frame: %w", f.Type, err)
	}
	return nil
}

// HelloData is sent by the client to introduce itself.
type HelloData struct {
	User     string `json:"user"`
	Protocol int    `json:"protocol,omitempty"`
}

// ConnectedData acknowledges a hello.
type ConnectedData struct {
	Session  string `json:"session"`
	Protocol int    `json:"protocol"`
}

// SubscribeData asks the relay to deliver a topic under the given subscription id.
// The relay answers with a receipt carrying the same id.
type SubscribeData struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
}

// UnsubscribeData cancels a subscription.
type UnsubscribeData struct {
	ID string `json:"id"`
}

// SendData publishes a body to a destination.
type SendData struct {
	Destination string          `json:"destination"`
	Body        json.RawMessage `json:"body"`
	Receipt     string          `json:"receipt,omitempty"`
}

// MessageData delivers a published body to a subscriber.
type MessageData struct {
	Subscription string          `json:"subscription"`
	Topic        string          `json:"topic"`
	Body         json.RawMessage `json:"body"`
}

// ReceiptData confirms a subscribe or send.
type ReceiptData struct {
	ID string `json:"id"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code    string `json:"code"`
	Msg     string `json:"msg"`
	Receipt string `json:"receipt,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}

// RoomTopic is the topic a room's messages are broadcast on.
func RoomTopic(roomID string) string {
	return roomTopicPrefix + roomID
}

// SendDestination is where clients publish messages for a room.
func SendDestination(roomID string) string {
	return sendMessagePrefix + roomID
}

// RoomFromDestination extracts the room id from a send destination.
func RoomFromDestination(destination string) (string, bool) {
	room, ok := strings.CutPrefix(destination, sendMessagePrefix)
	if !ok || room == "" || strings.Contains(room, "/") {
		return "", false
	}
	return room, true
}

// RoomFromTopic extracts the room id from a room topic.
func RoomFromTopic(topic string) (string, bool) {
	room, ok := strings.CutPrefix(topic, roomTopicPrefix)
	if !ok || room == "" || strings.Contains(room, "/") {
		return "", false
	}
	return room, true
}
