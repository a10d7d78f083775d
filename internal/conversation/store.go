package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/miskibin/sejmofil-sub001/internal/db"
)

// Store manages persistence of conversations and their messages.
type Store struct {
	db *db.DB
}

// NewStore creates a new conversation store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ensure creates the conversation if it does not exist yet. It returns
// ErrForbidden if the id is already owned by another user.
func ensure(ctx context.Context, q queryer, id, userID string, now time.Time) error {
	if id == "" {
		return fmt.Errorf("conversation id is required")
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, userID, now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}

	owner, err := ownerOf(ctx, q, id)
	if err != nil {
		return err
	}
	if owner != userID {
		return ErrForbidden
	}
	return nil
}

// Owner returns the user that owns the conversation, or ErrNotFound.
func (s *Store) Owner(ctx context.Context, id string) (string, error) {
	return ownerOf(ctx, s.db, id)
}

func ownerOf(ctx context.Context, q queryer, id string) (string, error) {
	var owner string
	err := q.QueryRowContext(ctx, `SELECT user_id FROM conversations WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting conversation owner: %w", err)
	}
	return owner, nil
}

// WriteTurn records a turn, creating the conversation on first use.
func (s *Store) WriteTurn(ctx context.Context, t Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := ensure(ctx, tx, t.ConversationID, t.UserID, now); err != nil {
		return err
	}
	m := Message{ConversationID: t.ConversationID, Role: t.Role, Content: t.Content}
	if err := appendMessage(ctx, tx, &m, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}
	return nil
}

func appendMessage(ctx context.Context, q queryer, m *Message, now time.Time) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = now

	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_messages WHERE conversation_id = ?`,
		m.ConversationID,
	).Scan(&m.Seq)
	if err != nil {
		return fmt.Errorf("computing message sequence: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO chat_messages (id, conversation_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Seq, m.Role, m.Content, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	_, err = q.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, m.ConversationID)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return nil
}

// Messages returns the messages of a conversation in order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, seq, role, content, created_at
		 FROM chat_messages WHERE conversation_id = ? ORDER BY seq ASC`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListByUser returns a user's conversations, most recently updated first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, created_at, updated_at FROM conversations
		 WHERE user_id = ? ORDER BY updated_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}
