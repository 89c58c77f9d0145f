// Package domain contains core domain types for the Smart Star chat client.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser marks a message typed by the signed-in user.
	RoleUser Role = "user"
	// RoleAssistant marks a reply produced by the assistant.
	RoleAssistant Role = "assistant"
)

// Message is a single entry of a conversation transcript.
type Message struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// NewUserMessage creates a user message with a fresh client-side id.
func NewUserMessage(content string, at time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: at,
	}
}

// NewAssistantMessage creates an assistant message from a raw reply.
// The content stays raw; suggestions are derived with ParseReply.
func NewAssistantMessage(raw string, at time.Time) Message {
	content, suggestions := ParseReply(raw)
	return Message{
		ID:          uuid.NewString(),
		Role:        RoleAssistant,
		Content:     content,
		Timestamp:   at,
		Suggestions: suggestions,
	}
}

// ChatHistory summarizes a persisted chat session.
type ChatHistory struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	LastMessage string `json:"lastMessage"`
	Date        string `json:"date"`
}

const titleLength = 15

// SessionTitle derives a history title from the first user message:
// the first 15 characters, with "..." appended when the text is longer.
func SessionTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleLength {
		return text
	}
	return string(runes[:titleLength]) + "..."
}
