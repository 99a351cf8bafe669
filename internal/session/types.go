// Package session provides durable persistence for conversation history.
//
// Each session identifier maps to exactly one persisted record holding the
// ordered message sequence for that conversation. Store replaces the record
// atomically on save, so readers never observe a partially written history.
package session

import "time"

// Role constants for persisted messages. Only user and assistant messages
// are ever stored; the system prompt is synthesized per turn and never
// becomes part of history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single conversation message. Timestamp marshals as RFC 3339,
// which is what the HTTP API exposes.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Info describes a stored conversation without its messages.
// Returned by Store.List for session enumeration.
type Info struct {
	SessionID    string    `json:"sessionId"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
