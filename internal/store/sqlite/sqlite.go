package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirechat-client/internal/store"
)

// Schema is applied by New. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id    INTEGER NOT NULL,
	sender     TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (room_id) REFERENCES rooms(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, id DESC);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies Schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema or seed rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== RoomStore implementation ====

func (s *SQLiteStore) CreateRoom(ctx context.Context, name string) (*store.Room, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO rooms (name) VALUES (?)`, name)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, store.ErrRoomExists
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	var room store.Room
	err = s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM rooms WHERE id = ?`, id).
		Scan(&room.ID, &room.Name, &room.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query room: %w", err)
	}
	return &room, nil
}

func (s *SQLiteStore) GetRoomByName(ctx context.Context, name string) (*store.Room, error) {
	var room store.Room
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM rooms WHERE name = ?`, name).
		Scan(&room.ID, &room.Name, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query room: %w", err)
	}
	return &room, nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a message to storage.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (room_id, sender, body, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.RoomID, msg.Sender, msg.Body, msg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// ListMessages retrieves a page of messages, newest page first, each page in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID int64, limit, offset int) ([]*store.Message, error) {
	query := `
		SELECT id, room_id, sender, body, created_at
		FROM messages
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.Sender, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, rows.Err()
}
