package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// MaxContentLength is the maximum number of characters in a message body.
const MaxContentLength = 1000

var (
	// ErrValidation indicates the message failed validation and was not stored.
	ErrValidation = errors.New("validation failed")
)

// Allowed message kinds.
const (
	KindText   = "text"
	KindImage  = "image"
	KindFile   = "file"
	KindSystem = "system"
)

func validKind(kind string) bool {
	switch kind {
	case KindText, KindImage, KindFile, KindSystem:
		return true
	}
	return false
}

// DB wraps the SQLite database connection
type DB struct {
	conn      *sql.DB // Read connection pool
	writeConn *sql.DB // Dedicated write connection (1 connection)
	snowflake *Snowflake
}

// Open opens a connection to the SQLite database at the given path
// and initializes the schema if needed
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Multiple readers are fine in WAL mode; writes go through writeConn
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := applyPragmas(conn); err != nil {
		conn.Close()
		return nil, err
	}

	writeConn, err := sql.Open("sqlite", path)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open write connection: %w", err)
	}

	// Exactly 1 connection, no pooling (SQLite allows a single writer)
	writeConn.SetMaxOpenConns(1)
	writeConn.SetMaxIdleConns(1)
	writeConn.SetConnMaxLifetime(0)

	if err := applyPragmas(writeConn); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, err
	}

	// Snowflake ID generator (epoch: 2024-01-01, workerID: 0). IDs are
	// time-ordered, so ordering by id matches ordering by creation time.
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	db := &DB{
		conn:      conn,
		writeConn: writeConn,
		snowflake: NewSnowflake(epoch, 0),
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func applyPragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

// Close closes the database connections
func (db *DB) Close() error {
	db.writeConn.Close()
	return db.conn.Close()
}

// initSchema creates all tables and indexes if they don't exist
func (db *DB) initSchema() error {
	schema := `
-- Message table. Exactly one of channel / recipient_id is set.
CREATE TABLE IF NOT EXISTS Message (
	id INTEGER PRIMARY KEY,
	sender_id TEXT NOT NULL,
	channel TEXT,
	recipient_id TEXT,
	kind TEXT NOT NULL DEFAULT 'text',
	content TEXT NOT NULL,
	is_read INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	CHECK ((channel IS NULL) != (recipient_id IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_messages_channel ON Message(channel, created_at DESC) WHERE channel IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_messages_direct ON Message(sender_id, recipient_id, created_at DESC) WHERE recipient_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_messages_unread ON Message(recipient_id, is_read) WHERE recipient_id IS NOT NULL;
`

	_, err := db.conn.Exec(schema)
	return err
}

// Message represents a stored chat message. Immutable once created, except
// for the read flag on direct messages.
type Message struct {
	ID          int64   `json:"id,string"`
	SenderID    string  `json:"senderId"`
	Channel     *string `json:"channel,omitempty"`
	RecipientID *string `json:"recipientId,omitempty"`
	Kind        string  `json:"kind"`
	Content     string  `json:"content"`
	Read        bool    `json:"read"`
	CreatedAt   int64   `json:"createdAt"` // Unix timestamp in milliseconds
}

// nowMillis returns current time as Unix timestamp in milliseconds
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// validateMessage enforces the append-time invariants: non-empty content
// within bounds, a known kind, and exactly one destination.
func validateMessage(channel, recipientID *string, kind, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if len([]rune(content)) > MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrValidation, MaxContentLength)
	}
	if !validKind(kind) {
		return fmt.Errorf("%w: unknown message kind %q", ErrValidation, kind)
	}
	hasChannel := channel != nil && *channel != ""
	hasRecipient := recipientID != nil && *recipientID != ""
	if hasChannel == hasRecipient {
		return fmt.Errorf("%w: exactly one of channel or recipient must be set", ErrValidation)
	}
	return nil
}

// AppendMessage validates and durably stores a new message, returning the
// stored form with its server-assigned id and timestamp. Team messages are
// stored with the read flag already set; the flag only carries meaning for
// direct messages.
func (db *DB) AppendMessage(senderID string, channel, recipientID *string, kind, content string) (*Message, error) {
	if err := validateMessage(channel, recipientID, kind, content); err != nil {
		return nil, err
	}

	msg := &Message{
		ID:        db.snowflake.NextID(),
		SenderID:  senderID,
		Kind:      kind,
		Content:   content,
		CreatedAt: nowMillis(),
	}

	var channelVal, recipientVal sql.NullString
	if channel != nil && *channel != "" {
		channelVal = sql.NullString{Valid: true, String: *channel}
		msg.Channel = channel
		msg.Read = true
	}
	if recipientID != nil && *recipientID != "" {
		recipientVal = sql.NullString{Valid: true, String: *recipientID}
		msg.RecipientID = recipientID
	}

	readVal := 0
	if msg.Read {
		readVal = 1
	}

	_, err := db.writeConn.Exec(`
		INSERT INTO Message (id, sender_id, channel, recipient_id, kind, content, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SenderID, channelVal, recipientVal, msg.Kind, msg.Content, readVal, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	return msg, nil
}

// PageTeamHistory returns one page of a channel's history. The page window is
// selected newest-first (page 1 = most recent pageSize messages) and the
// returned slice is re-ordered oldest-first so a conversation reads top-down.
func (db *DB) PageTeamHistory(channel string, page, pageSize int) ([]*Message, error) {
	page, pageSize = clampPaging(page, pageSize)

	rows, err := db.conn.Query(`
		SELECT id, sender_id, channel, recipient_id, kind, content, is_read, created_at
		FROM Message
		WHERE channel = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, channel, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

// PageDirectHistory returns one page of the direct conversation between two
// users, matching either ordering of the pair. Same windowing rule as
// PageTeamHistory.
func (db *DB) PageDirectHistory(userA, userB string, page, pageSize int) ([]*Message, error) {
	page, pageSize = clampPaging(page, pageSize)

	rows, err := db.conn.Query(`
		SELECT id, sender_id, channel, recipient_id, kind, content, is_read, created_at
		FROM Message
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, userA, userB, userB, userA, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

// MarkRead sets the read flag on every listed message whose recipient is the
// reader. Ids that don't exist or belong to someone else are silently
// skipped. Returns the number of messages actually updated.
func (db *DB) MarkRead(messageIDs []int64, readerID string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(messageIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(messageIDs)+1)
	for _, id := range messageIDs {
		args = append(args, id)
	}
	args = append(args, readerID)

	result, err := db.writeConn.Exec(`
		UPDATE Message SET is_read = 1
		WHERE id IN (`+placeholders+`) AND recipient_id = ? AND is_read = 0
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}

	return result.RowsAffected()
}

// GetMessage returns a single message by ID
func (db *DB) GetMessage(messageID int64) (*Message, error) {
	row := db.conn.QueryRow(`
		SELECT id, sender_id, channel, recipient_id, kind, content, is_read, created_at
		FROM Message
		WHERE id = ?
	`, messageID)
	return scanMessage(row)
}

// CountMessages returns the total number of stored messages
func (db *DB) CountMessages() int64 {
	var count int64
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM Message`).Scan(&count); err != nil {
		return 0
	}
	return count
}

func clampPaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	return page, pageSize
}

func reverseMessages(msgs []*Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessageInto(sc rowScanner) (*Message, error) {
	msg := &Message{}
	var channel, recipient sql.NullString
	var read int

	err := sc.Scan(
		&msg.ID,
		&msg.SenderID,
		&channel,
		&recipient,
		&msg.Kind,
		&msg.Content,
		&read,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if channel.Valid {
		msg.Channel = &channel.String
	}
	if recipient.Valid {
		msg.RecipientID = &recipient.String
	}
	msg.Read = read != 0

	return msg, nil
}

func scanMessage(row *sql.Row) (*Message, error) {
	return scanMessageInto(row)
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessageInto(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
