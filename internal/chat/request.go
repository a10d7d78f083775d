package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/miskibin/sejmofil-sub001/internal/llm"
)

// ErrInvalidRequest is returned for requests rejected before streaming.
var ErrInvalidRequest = errors.New("invalid chat request")

// ChatMessage is one message of the incoming conversation.
type ChatMessage struct {
	Role    llm.Role `json:"role"`
	Content string   `json:"content"`
}

// ChatRequest is the body of POST /api/chat and of each WebSocket message.
type ChatRequest struct {
	Messages       []ChatMessage `json:"messages"`
	ConversationID string        `json:"conversationId,omitempty"`
}

// Validate checks that the request has a non-empty history of known roles
// ending in a non-empty message, with at least one user message.
func (r ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: messages must not be empty", ErrInvalidRequest)
	}
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: message %d has unknown role %q", ErrInvalidRequest, i, m.Role)
		}
	}
	if strings.TrimSpace(r.Messages[len(r.Messages)-1].Content) == "" {
		return fmt.Errorf("%w: last message is empty", ErrInvalidRequest)
	}
	if r.Query() == "" {
		return fmt.Errorf("%w: no user message", ErrInvalidRequest)
	}
	return nil
}

// Query returns the active question: the content of the last user message.
func (r ChatRequest) Query() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == llm.RoleUser {
			return strings.TrimSpace(r.Messages[i].Content)
		}
	}
	return ""
}

// History converts the messages for the provider, unmodified.
func (r ChatRequest) History() []llm.Message {
	out := make([]llm.Message, len(r.Messages))
	for i, m := range r.Messages {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
