package entities

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const titleMaxLen = 40

// Greeting returns the synthetic opening assistant message for a domain.
// The greeting is excluded from title derivation and from cross-session
// context digests.
func Greeting(domain ChatDomain) string {
	switch domain {
	case ChatDomainHealth:
		return "Hi! I'm your personal health coach. Ask me anything about fitness, nutrition, sleep, or building healthier habits."
	default:
		return "Hello! I'm your AI doctor. Describe your symptoms or ask me any health question, and I'll do my best to help."
	}
}

// Session is an ordered conversation plus its derived title. Messages are
// append-only and chronological; a session whose only message is the
// synthetic greeting is considered empty and is never persisted.
type Session struct {
	ID        string     `json:"id" bson:"_id"`
	UserID    string     `json:"user_id" bson:"user_id"`
	Domain    ChatDomain `json:"type" bson:"type"`
	Title     string     `json:"title" bson:"title"`
	Messages  []Message  `json:"messages" bson:"messages"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}

// NewSession creates a session opened by the synthetic greeting.
func NewSession(userID string, domain ChatDomain) *Session {
	now := time.Now()
	greeting := NewMessage(MessageRoleAssistant, Greeting(domain))
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Domain:    domain,
		Title:     "New conversation",
		Messages:  []Message{greeting},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the ordered sequence and refreshes the derived
// title from the first user message.
func (s *Session) Append(msg Message) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
	if msg.Role == MessageRoleUser && s.Title == "New conversation" {
		s.Title = truncateTitle(msg.Content)
	}
}

// IsEmpty reports whether the session holds nothing beyond the greeting.
// Empty sessions are skipped by durable persistence.
func (s *Session) IsEmpty() bool {
	return len(s.Messages) <= 1
}

// NonGreetingMessages returns the messages excluding the synthetic opening.
func (s *Session) NonGreetingMessages() []Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[1:]
}

// Validate validates the session data.
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	if _, err := uuid.Parse(s.ID); err != nil {
		return errors.New("session id is not a well-formed uuid")
	}
	if !s.Domain.Valid() {
		return errors.New("invalid session domain")
	}
	return nil
}

func truncateTitle(content string) string {
	if utf8.RuneCountInString(content) <= titleMaxLen {
		return content
	}
	runes := []rune(content)
	return string(runes[:titleMaxLen]) + "..."
}
