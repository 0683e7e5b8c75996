package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

// Message represents a stored conversation message. Only user inputs and
// assistant replies are recorded; system and tool messages stay with the host.
type Message struct {
	// MessageID is a generated surrogate identifier
	MessageID string

	// SessionID identifies the session this message belongs to
	SessionID string

	// TurnID references the turn that produced an assistant message.
	// Zero (stored as NULL) for user messages.
	TurnID int64

	// Role is the message role (user or assistant)
	Role string

	// Content is the message text
	Content string

	CreatedAt time.Time
}

// NewUserMessage creates a message for raw user input
func NewUserMessage(sessionID string, content string, at time.Time) *Message {
	return &Message{
		MessageID: uuid.NewString(),
		SessionID: sessionID,
		Role:      openai.ChatMessageRoleUser,
		Content:   content,
		CreatedAt: at,
	}
}

// NewAssistantMessage creates a message for an assistant reply produced by
// the given turn
func NewAssistantMessage(sessionID string, turnID int64, content string, at time.Time) *Message {
	return &Message{
		MessageID: uuid.NewString(),
		SessionID: sessionID,
		TurnID:    turnID,
		Role:      openai.ChatMessageRoleAssistant,
		Content:   content,
		CreatedAt: at,
	}
}
