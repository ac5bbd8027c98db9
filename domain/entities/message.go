package entities

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ChatDomain distinguishes the two conversation products that share one
// session engine.
type ChatDomain string

const (
	// ChatDomainMedical is the AI doctor conversation.
	ChatDomainMedical ChatDomain = "medical"
	// ChatDomainHealth is the health coach conversation.
	ChatDomainHealth ChatDomain = "health"
)

// Valid reports whether the domain tag is one of the known products.
func (d ChatDomain) Valid() bool {
	return d == ChatDomainMedical || d == ChatDomainHealth
}

// Attachment points at a stored file referenced by a message.
type Attachment struct {
	Name        string `json:"name" bson:"name"`
	ObjectKey   string `json:"object_key" bson:"object_key"`
	ContentType string `json:"content_type" bson:"content_type"`
}

// Message is one turn in a conversation. Role and content are immutable
// after creation; edits happen before send, never after.
type Message struct {
	ID          string       `json:"id" bson:"id"`
	Role        MessageRole  `json:"role" bson:"role"`
	Content     string       `json:"content" bson:"content"`
	Timestamp   time.Time    `json:"timestamp" bson:"timestamp"`
	Language    string       `json:"language,omitempty" bson:"language,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty" bson:"attachments,omitempty"`
}

// NewMessage creates a message with a fresh id and timestamp.
func NewMessage(role MessageRole, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}
