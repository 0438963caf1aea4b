package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/pulsenet/pulse-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	avatar        TEXT NOT NULL DEFAULT '',
	is_online     BOOLEAN NOT NULL DEFAULT 0,
	last_seen     DATETIME,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	sender_id   TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	type        TEXT NOT NULL DEFAULT 'text',
	content     TEXT NOT NULL DEFAULT '',
	post_id     TEXT,
	read        BOOLEAN NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	FOREIGN KEY (sender_id) REFERENCES users(id),
	FOREIGN KEY (receiver_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(sender_id, receiver_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_receiver_unread
	ON messages(receiver_id, read);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (creating if needed) the SQLite database at dbPath and applies
// the schema. The DDL is idempotent, so opening an existing database is safe.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password. A username collision
// surfaces as store.ErrAlreadyExists.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO users (id, username, password_hash)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, username, passwordHash); err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, store.ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, avatar, is_online, last_seen, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, avatar, is_online, last_seen, created_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

// SearchUsers searches for users by username substring.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string) ([]*store.User, error) {
	stmt := `
		SELECT id, username, password_hash, avatar, is_online, last_seen, created_at
		FROM users
		WHERE username LIKE ?
		ORDER BY username
		LIMIT 20
	`
	rows, err := s.db.QueryContext(ctx, stmt, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdatePresence sets the online flag and optionally the last-seen timestamp.
func (s *SQLiteStore) UpdatePresence(ctx context.Context, userID string, online bool, lastSeen *time.Time) error {
	var err error
	if lastSeen != nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?`,
			online, lastSeen.UTC(), userID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE users SET is_online = ? WHERE id = ?`,
			online, userID)
	}
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	var lastSeen sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Avatar, &u.IsOnline, &lastSeen, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if lastSeen.Valid {
		u.LastSeen = &lastSeen.Time
	}
	return &u, nil
}

func scanUserRow(rows *sql.Rows) (*store.User, error) {
	var u store.User
	var lastSeen sql.NullTime
	if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Avatar, &u.IsOnline, &lastSeen, &u.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if lastSeen.Valid {
		u.LastSeen = &lastSeen.Time
	}
	return &u, nil
}

// ==== MessageStore implementation ====

const resolvedMessageColumns = `
	m.id, m.sender_id, m.receiver_id, m.type, m.content, m.post_id, m.read, m.created_at,
	su.username, su.avatar,
	ru.username, ru.avatar
`

// SaveMessage persists a message. An empty ID gets a generated one.
func (s *SQLiteStore) SaveMessage(ctx context.Context, m *store.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (id, sender_id, receiver_id, type, content, post_id, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.SenderID, m.ReceiverID, m.Type, m.Content, m.PostID, m.Read, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message with both participants joined.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.ResolvedMessage, error) {
	query := `
		SELECT ` + resolvedMessageColumns + `
		FROM messages m
		JOIN users su ON su.id = m.sender_id
		JOIN users ru ON ru.id = m.receiver_id
		WHERE m.id = ?
	`
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get message: %w", err)
		}
		return nil, store.ErrNotFound
	}
	return scanResolvedMessage(rows)
}

// ListConversation returns messages between two users, oldest first.
func (s *SQLiteStore) ListConversation(ctx context.Context, userID, otherID string, limit int, before *string) ([]*store.ResolvedMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + resolvedMessageColumns + `
		FROM messages m
		JOIN users su ON su.id = m.sender_id
		JOIN users ru ON ru.id = m.receiver_id
		WHERE ((m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?))
	`
	args := []any{userID, otherID, otherID, userID}

	if before != nil {
		query += ` AND m.created_at < (SELECT created_at FROM messages WHERE id = ?)`
		args = append(args, *before)
	}

	query += ` ORDER BY m.created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	defer rows.Close()

	var messages []*store.ResolvedMessage
	for rows.Next() {
		m, err := scanResolvedMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Fetched newest-first for the LIMIT; callers expect oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListChats returns one entry per conversation partner, ordered by the latest
// message, with the count of unread messages from that partner.
func (s *SQLiteStore) ListChats(ctx context.Context, userID string) ([]*store.ChatSummary, error) {
	query := `
		WITH conv AS (
			SELECT m.*,
				ROW_NUMBER() OVER (
					PARTITION BY CASE WHEN m.sender_id = ? THEN m.receiver_id ELSE m.sender_id END
					ORDER BY m.created_at DESC, m.id DESC
				) AS rn
			FROM messages m
			WHERE m.sender_id = ? OR m.receiver_id = ?
		)
		SELECT ` + resolvedMessageColumns + `,
			COALESCE(unread.n, 0)
		FROM conv m
		JOIN users su ON su.id = m.sender_id
		JOIN users ru ON ru.id = m.receiver_id
		LEFT JOIN (
			SELECT sender_id, COUNT(*) AS n
			FROM messages
			WHERE receiver_id = ? AND read = 0
			GROUP BY sender_id
		) unread ON unread.sender_id = CASE WHEN m.sender_id = ? THEN m.receiver_id ELSE m.sender_id END
		WHERE m.rn = 1
		ORDER BY m.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []*store.ChatSummary
	for rows.Next() {
		var c store.ChatSummary
		var postID sql.NullString
		m := &c.LastMessage
		err := rows.Scan(
			&m.ID, &m.SenderID, &m.ReceiverID, &m.Type, &m.Content, &postID, &m.Read, &m.CreatedAt,
			&m.Sender.Username, &m.Sender.Avatar,
			&m.Receiver.Username, &m.Receiver.Avatar,
			&c.UnreadCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		if postID.Valid {
			m.PostID = &postID.String
		}
		m.Sender.ID = m.SenderID
		m.Receiver.ID = m.ReceiverID
		chats = append(chats, &c)
	}
	return chats, rows.Err()
}

// MarkConversationRead marks unread messages from otherID to readerID as read.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, readerID, otherID string) (int64, error) {
	query := `
		UPDATE messages SET read = 1
		WHERE receiver_id = ? AND sender_id = ? AND read = 0
	`
	res, err := s.db.ExecContext(ctx, query, readerID, otherID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func scanResolvedMessage(rows *sql.Rows) (*store.ResolvedMessage, error) {
	var m store.ResolvedMessage
	var postID sql.NullString
	err := rows.Scan(
		&m.ID, &m.SenderID, &m.ReceiverID, &m.Type, &m.Content, &postID, &m.Read, &m.CreatedAt,
		&m.Sender.Username, &m.Sender.Avatar,
		&m.Receiver.Username, &m.Receiver.Avatar,
	)
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	if postID.Valid {
		m.PostID = &postID.String
	}
	m.Sender.ID = m.SenderID
	m.Receiver.ID = m.ReceiverID
	return &m, nil
}
