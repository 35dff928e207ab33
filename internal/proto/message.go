package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	// epoch values above this are treated as milliseconds.
	epochMillisThreshold = 1e11
	// 10000-01-01T00:00:00Z in milliseconds.
	maxEpochMillis = 253402300800000
)

var (
	ErrMissingSender  = errors.New("message sender is missing")
	ErrMissingContent = errors.New("message content is missing")
)

// localDateTimeLayouts cover ISO-8601 timestamps without a zone offset.
var localDateTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ChatMessage is the JSON wire shape of a room message.
type ChatMessage struct {
	Sender    string          `json:"sender"`
	Content   string          `json:"content"`
	RoomID    string          `json:"roomId,omitempty"`
	TimeStamp json.RawMessage `json:"timeStamp,omitempty"`
}

// DecodeChatMessage parses a wire message and checks required fields.
func DecodeChatMessage(raw []byte) (ChatMessage, error) {
	var msg ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ChatMessage{}, fmt.Errorf("decode chat message: %w", err)
	}
	if msg.Sender == "" {
		return ChatMessage{}, ErrMissingSender
	}
	if msg.Content == "" {
		return ChatMessage{}, ErrMissingContent
	}
	return msg, nil
}

// EncodeChatMessage marshals a message for publishing. Timestamps are set by the relay.
func EncodeChatMessage(sender, content, roomID string) ([]byte, error) {
	raw, err := json.Marshal(ChatMessage{Sender: sender, Content: content, RoomID: roomID})
	if err != nil {
		return nil, fmt.Errorf("encode chat message: %w", err)
	}
	return raw, nil
}

// FormatTimestamp renders a timestamp the way the relay stamps messages.
func FormatTimestamp(t time.Time) json.RawMessage {
	raw, _ := json.Marshal(t.UTC().Format(time.RFC3339Nano))
	return raw
}

// ParseTimestamp accepts RFC 3339, zone-less ISO-8601 (read as local time),
// epoch seconds or milliseconds as a number or numeric string, and the
// [y,m,d,h,min,s,nanos] array form. ok is false if nothing matched.
func ParseTimestamp(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false
		}
		return parseTimestampString(s)
	case '[':
		var parts []int
		if err := json.Unmarshal(raw, &parts); err != nil {
			return time.Time{}, false
		}
		return parseTimestampArray(parts)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return time.Time{}, false
		}
		return parseEpoch(string(n))
	}
}

func parseTimestampString(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range localDateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return parseEpoch(s)
}

func parseEpoch(s string) (time.Time, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f >= maxEpochMillis {
		return time.Time{}, false
	}
	if f >= epochMillisThreshold {
		return time.UnixMilli(int64(f)), true
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)), true
}

func parseTimestampArray(parts []int) (time.Time, bool) {
	if len(parts) < 3 {
		return time.Time{}, false
	}
	vals := make([]int, 7)
	copy(vals, parts)
	if vals[0] < 1 || vals[0] > 9999 || vals[1] < 1 || vals[1] > 12 || vals[2] < 1 || vals[2] > 31 {
		return time.Time{}, false
	}
	return time.Date(vals[0], time.Month(vals[1]), vals[2], vals[3], vals[4], vals[5], vals[6], time.Local), true
}
