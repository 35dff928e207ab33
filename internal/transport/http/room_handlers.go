package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(st store.Store, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		store: st,
		log:   logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	RoomID string `json:"roomId" binding:"required,max=64"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	RoomID    string `json:"roomId"`
	CreatedAt string `json:"createdAt"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func roomResponse(room *store.Room) RoomResponse {
	return RoomResponse{
		RoomID:    room.Name,
		CreatedAt: room.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func validRoomID(id string) bool {
	return id != "" && strings.TrimSpace(id) == id && !strings.Contains(id, "/")
}

// CreateRoom handles room creation.
// POST /api/v1/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || !validRoomID(req.RoomID) {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room, err := h.store.CreateRoom(c.Request.Context(), req.RoomID)
	if err != nil {
		if errors.Is(err, store.ErrRoomExists) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room already exists"})
			return
		}
		h.log.Error().Err(err).Str("room", req.RoomID).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room", room.Name).Int64("room_pk", room.ID).Msg("room created")
	c.JSON(http.StatusCreated, roomResponse(room))
}

// GetRoom looks up a room by id.
// GET /api/v1/rooms/:roomId
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	room, ok := h.loadRoom(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, roomResponse(room))
}

// ListMessages returns one page of a room's history, oldest first.
// Page 0 holds the most recent messages.
// GET /api/v1/rooms/:roomId/messages?page=0&size=50
func (h *RoomHandlers) ListMessages(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultPageSize)))
	if err != nil || size <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid size"})
		return
	}
	size = min(size, maxPageSize)
	if page > math.MaxInt/size {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		return
	}

	room, ok := h.loadRoom(c)
	if !ok {
		return
	}

	msgs, err := h.store.ListMessages(c.Request.Context(), room.ID, size, page*size)
	if err != nil {
		h.log.Error().Err(err).Str("room", room.Name).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		response = append(response, proto.ChatMessage{
			Sender:    m.Sender,
			Content:   m.Body,
			RoomID:    room.Name,
			TimeStamp: proto.FormatTimestamp(m.CreatedAt),
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *RoomHandlers) loadRoom(c *gin.Context) (*store.Room, bool) {
	name := c.Param("roomId")
	room, err := h.store.GetRoomByName(c.Request.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("room", name).Msg("failed to load room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}
	return room, true
}
