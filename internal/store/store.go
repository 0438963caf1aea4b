package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a uniqueness constraint rejects a create.
var ErrAlreadyExists = errors.New("already exists")

// User represents a user in the system.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Avatar       string
	IsOnline     bool
	LastSeen     *time.Time
	CreatedAt    time.Time
}

// Message represents a persisted direct message.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Type       string // text, image, repost
	Content    string
	PostID     *string // set for reposts
	Read       bool
	CreatedAt  time.Time
}

// Participant is the display projection of a message party.
type Participant struct {
	ID       string
	Username string
	Avatar   string
}

// ResolvedMessage is a message joined with both participants' display fields.
type ResolvedMessage struct {
	Message
	Sender   Participant
	Receiver Participant
}

// ChatSummary is one conversation in a user's chat list: the latest message
// exchanged with a peer plus how many of their messages are still unread.
type ChatSummary struct {
	LastMessage ResolvedMessage
	UnreadCount int64
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SearchUsers searches for users by username substring.
	SearchUsers(ctx context.Context, query string) ([]*User, error)

	// UpdatePresence sets the online flag and, when lastSeen is non-nil,
	// the last-seen timestamp.
	UpdatePresence(ctx context.Context, userID string, online bool, lastSeen *time.Time) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message.
	SaveMessage(ctx context.Context, m *Message) error

	// GetMessage retrieves a message with participant display fields joined.
	GetMessage(ctx context.Context, id string) (*ResolvedMessage, error)

	// ListConversation returns messages between two users, oldest first.
	// If before is provided, only messages older than that message are
	// returned; limit caps the result size.
	ListConversation(ctx context.Context, userID, otherID string, limit int, before *string) ([]*ResolvedMessage, error)

	// MarkConversationRead marks all unread messages sent by otherID to
	// readerID as read and returns how many were updated.
	MarkConversationRead(ctx context.Context, readerID, otherID string) (int64, error)

	// ListChats returns one entry per conversation partner of userID, newest
	// conversation first.
	ListChats(ctx context.Context, userID string) ([]*ChatSummary, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
