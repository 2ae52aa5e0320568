package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageAudio  MessageType = "audio"
	MessageSystem MessageType = "system"
)

// MessageMetadata carries type-specific attributes (audio duration in
// seconds, file size in bytes).
type MessageMetadata struct {
	Duration *float64 `json:"duration,omitempty"`
	Size     *int64   `json:"size,omitempty"`
}

type Reaction struct {
	UserID uuid.UUID `json:"user_id"`
	Emoji  string    `json:"emoji"`
}

type Message struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	SenderID       uuid.UUID       `json:"sender_id"`
	Type           MessageType     `json:"type"`
	Text           *string         `json:"text,omitempty"`
	FileURL        *string         `json:"file_url,omitempty"`
	Metadata       MessageMetadata `json:"metadata"`
	ReplyToID      *uuid.UUID      `json:"reply_to_id,omitempty"`
	ReplyTo        *Message        `json:"reply_to,omitempty"`
	SeenBy         []uuid.UUID     `json:"seen_by,omitempty"`
	IsRecalled     bool            `json:"is_recalled"`
	Edited         bool            `json:"edited"`
	DeletedBy      []uuid.UUID     `json:"-"`
	Reactions      []Reaction      `json:"reactions,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// IsHiddenFor reports whether userID soft-deleted this message for
// themselves. The message stays visible to everyone else.
func (m *Message) IsHiddenFor(userID uuid.UUID) bool {
	for _, id := range m.DeletedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// ReactionOf returns the index of userID's reaction, or -1. A user holds
// at most one reaction per message.
func (m *Message) ReactionOf(userID uuid.UUID) int {
	for i, r := range m.Reactions {
		if r.UserID == userID {
			return i
		}
	}
	return -1
}
