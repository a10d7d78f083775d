package conversation

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrForbidden is returned when a conversation belongs to another user.
	ErrForbidden = errors.New("conversation belongs to another user")
)

// Conversation is a persisted chat thread owned by one user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one stored turn of a conversation. Seq orders messages
// within their conversation starting at 1.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Seq            int       `json:"seq"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Turn is a single message to be recorded for a user's conversation.
type Turn struct {
	ConversationID string
	UserID         string
	Role           string
	Content        string
}
