package models

import "time"

// DefaultConversationTitle is the placeholder title; creating a conversation
// with it (or with no title) generates a dated one instead.
const DefaultConversationTitle = "New Conversation"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        int64     `json:"id"`
	ConvID    int64     `json:"conversation_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"time"`
	Model     string    `json:"model"`
}

type Conversation struct {
	ID                    int64     `json:"id"`
	Title                 string    `json:"title"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
	MessageCount          int       `json:"message_count"`
	ContextStartMessageID *int64    `json:"context_start_message_id"`
}

// ChatMessage is the role/content pair sent to the model.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ModelInfo is one entry of the model catalog.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
