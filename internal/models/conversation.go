package models

import "time"

// AnonymousUser owns conversations started without a user id.
const AnonymousUser = "anonymous"

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive    ConversationStatus = "active"
	StatusPaused    ConversationStatus = "paused"
	StatusCompleted ConversationStatus = "completed"
	StatusArchived  ConversationStatus = "archived"
	// StatusDeleted marks a soft-deleted conversation. Rows are never removed.
	StatusDeleted ConversationStatus = "deleted"
)

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

// Metadata is free-form key/value data persisted as JSON.
type Metadata map[string]any

type Conversation struct {
	ID           string             `json:"id"`
	UserID       string             `json:"userId"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	Status       ConversationStatus `json:"status"`
	Metadata     Metadata           `json:"metadata"`
	MessageCount int                `json:"messageCount"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	Metadata       Metadata  `json:"metadata,omitempty"`
	TokenCount     int       `json:"tokenCount"`
}

// Turn is one role/content pair handed to a response generator.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
