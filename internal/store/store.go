package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a room does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRoomExists is returned when creating a room whose name is taken.
	ErrRoomExists = errors.New("room already exists")
)

// Room represents a chat room.
type Room struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	RoomID    int64
	Sender    string
	Body      string
	CreatedAt time.Time
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom creates a new room. Returns ErrRoomExists if the name is taken.
	CreateRoom(ctx context.Context, name string) (*Room, error)

	// GetRoomByName retrieves a room by name. Returns ErrNotFound if missing.
	GetRoomByName(ctx context.Context, name string) (*Room, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and sets its ID.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns up to limit messages in chronological order,
	// skipping the offset most recent ones.
	ListMessages(ctx context.Context, roomID int64, limit, offset int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
