// Package roomapi is a client for the relay's room REST API: creating and
// joining rooms and loading recent history.
package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// DefaultHistorySize is the number of recent messages FetchHistory asks for.
const DefaultHistorySize = 50

var (
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomNotFound = errors.New("room not found")
)

// Room is a room as reported by the relay.
type Room struct {
	ID        string    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Client calls the room API rooted at a relay base URL.
type Client struct {
	baseURL string
	client  *http.Client
	log     *zerolog.Logger
	now     func() time.Time

	// HistorySize is the page size used by FetchHistory.
	HistorySize int
}

// New creates a client for baseURL (e.g. http://localhost:8080). A nil
// httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client, logger *zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      httpClient,
		log:         logger,
		now:         time.Now,
		HistorySize: DefaultHistorySize,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateRoom creates roomID. It returns ErrRoomExists if the relay already has it.
func (c *Client) CreateRoom(ctx context.Context, roomID string) (Room, error) {
	body, err := json.Marshal(map[string]string{"roomId": roomID})
	if err != nil {
		return Room{}, fmt.Errorf("encode create room: %w", err)
	}

	var room Room
	status, err := c.do(ctx, http.MethodPost, "/api/v1/rooms", body, &room)
	switch {
	case err != nil:
		return Room{}, fmt.Errorf("create room %s: %w", roomID, err)
	case status == http.StatusBadRequest:
		return Room{}, fmt.Errorf("create room %s: %w", roomID, ErrRoomExists)
	case status != http.StatusCreated:
		return Room{}, fmt.Errorf("create room %s: unexpected status %d", roomID, status)
	}

	c.log.Info().Str("room", room.ID).Msg("room created")
	return room, nil
}

// JoinRoom checks that roomID exists. It returns ErrRoomNotFound otherwise.
func (c *Client) JoinRoom(ctx context.Context, roomID string) (Room, error) {
	var room Room
	status, err := c.do(ctx, http.MethodGet, roomPath(roomID), nil, &room)
	switch {
	case err != nil:
		return Room{}, fmt.Errorf("join room %s: %w", roomID, err)
	case status == http.StatusNotFound:
		return Room{}, fmt.Errorf("join room %s: %w", roomID, ErrRoomNotFound)
	case status != http.StatusOK:
		return Room{}, fmt.Errorf("join room %s: unexpected status %d", roomID, status)
	}
	return room, nil
}

// FetchHistory loads the most recent page of roomID's messages, oldest first.
func (c *Client) FetchHistory(ctx context.Context, roomID string) ([]chat.Message, error) {
	size := c.HistorySize
	if size <= 0 {
		size = DefaultHistorySize
	}
	query := url.Values{}
	query.Set("page", "0")
	query.Set("size", strconv.Itoa(size))

	var wire []proto.ChatMessage
	status, err := c.do(ctx, http.MethodGet, roomPath(roomID)+"/messages?"+query.Encode(), nil, &wire)
	switch {
	case err != nil:
		return nil, fmt.Errorf("fetch history %s: %w", roomID, err)
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("fetch history %s: %w", roomID, ErrRoomNotFound)
	case status != http.StatusOK:
		return nil, fmt.Errorf("fetch history %s: unexpected status %d", roomID, status)
	}

	receivedAt := c.now()
	msgs := make([]chat.Message, 0, len(wire))
	for _, w := range wire {
		if w.Sender == "" || w.Content == "" {
			c.log.Debug().Str("room", roomID).Msg("skipping incomplete history entry")
			continue
		}
		m := chat.MessageFromWire(w, receivedAt)
		if m.Room == "" {
			m.Room = roomID
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func roomPath(roomID string) string {
	return "/api/v1/rooms/" + url.PathEscape(roomID)
}

// do sends the request and decodes a 2xx body into out. Non-2xx statuses are
// returned without error so callers can map them.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			c.log.Debug().Int("status", resp.StatusCode).Str("error", apiErr.Error).Str("path", path).Msg("room api error")
		}
		return resp.StatusCode, nil
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
