package message

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultDeliveredDelay is how long after a successful insert the store
// waits before promoting the row from sent to delivered. This simulates
// delivery from the server's perspective; it is not a receiver ack.
const DefaultDeliveredDelay = 2 * time.Second

const messageColumns = `id, sender_id, receiver_id, content, message_type, status, reply_to, created_at, updated_at, read_at`

// Store manages message rows in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a message store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Send inserts a new message with status sent and returns the stored row.
// Insert failures are returned to the caller so optimistic UI state can be
// rolled back; there is no automatic retry.
func (s *Store) Send(ctx context.Context, sender, receiver, content, msgType string, replyTo *string) (*Message, error) {
	if err := ValidateContent(content, msgType); err != nil {
		return nil, fmt.Errorf("message: send: %w", err)
	}

	const query = `
		INSERT INTO messages (id, sender_id, receiver_id, content, message_type, status, reply_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + messageColumns

	row := s.db.QueryRowContext(ctx, query,
		uuid.New().String(), sender, receiver, content, msgType, StatusSent, replyTo)

	m, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("message: insert: %w", err)
	}
	return m, nil
}

// Fetch returns messages exchanged between a and b in either direction,
// ascending by creation time, paginated by limit/offset. An empty
// conversation yields an empty slice and no error.
func (s *Store) Fetch(ctx context.Context, a, b string, limit, offset int) ([]Message, error) {
	const query = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4`

	rows, err := s.db.QueryContext(ctx, query, a, b, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("message: fetch: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("message: fetch scan: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message: fetch rows: %w", err)
	}
	return out, nil
}

// MarkRead bulk-updates all not-yet-read messages from sender to receiver
// to read and stamps read_at. The WHERE guard keeps the status machine
// moving forward only.
func (s *Store) MarkRead(ctx context.Context, receiver, sender string) error {
	const query = `
		UPDATE messages
		SET status = $1, read_at = NOW(), updated_at = NOW()
		WHERE receiver_id = $2 AND sender_id = $3 AND status <> $1`

	if _, err := s.db.ExecContext(ctx, query, StatusRead, receiver, sender); err != nil {
		return fmt.Errorf("message: mark read: %w", err)
	}
	return nil
}

// MarkDelivered promotes a single message from sent to delivered. Rows that
// have already advanced past sent are left untouched. Returns true if the
// row was promoted.
func (s *Store) MarkDelivered(ctx context.Context, messageID string) (bool, error) {
	const query = `
		UPDATE messages
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	res, err := s.db.ExecContext(ctx, query, StatusDelivered, messageID, StatusSent)
	if err != nil {
		return false, fmt.Errorf("message: mark delivered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("message: mark delivered rows: %w", err)
	}
	return n > 0, nil
}

// Get retrieves a single message by ID. Returns nil if not found.
func (s *Store) Get(ctx context.Context, messageID string) (*Message, error) {
	const query = `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(s.db.QueryRowContext(ctx, query, messageID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("message: get: %w", err)
	}
	return m, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(s scanner) (*Message, error) {
	var m Message
	var replyTo sql.NullString
	var readAt sql.NullTime
	err := s.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Type,
		&m.Status, &replyTo, &m.CreatedAt, &m.UpdatedAt, &readAt)
	if err != nil {
		return nil, err
	}
	if replyTo.Valid {
		m.ReplyTo = &replyTo.String
	}
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}
	return &m, nil
}
