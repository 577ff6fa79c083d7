package models

import (
	"encoding/json"
	"time"
)

// Client envelope types accepted over the websocket.
const (
	ClientAuth       = "auth"
	ClientJoin       = "join"
	ClientLeave      = "leave"
	ClientMessage    = "message"
	ClientTyping     = "typing"
	ClientRead       = "read"
	ClientAIAssist   = "ai_assistant"
	ClientSupportBot = "support_bot"
)

// Server event types pushed to live connections.
const (
	EventMessage        = "chat:message"
	EventHistory        = "chat:history"
	EventPresence       = "chat:presence"
	EventTyping         = "chat:typing"
	EventRead           = "chat:read"
	EventMessageEdited  = "chat:message_edited"
	EventMessageDeleted = "chat:message_deleted"
	EventError          = "error"
)

// ClientEnvelope is the inbound websocket frame.
type ClientEnvelope struct {
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
	MessageID      string          `json:"messageId,omitempty"`
}

// ServerEvent is the outbound websocket frame; delivery is fire-and-forget.
type ServerEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ErrorEvent builds the error envelope sent for rejected or malformed input.
func ErrorEvent(message string) ServerEvent {
	return ServerEvent{Type: EventError, Data: map[string]string{"message": message}}
}

// PresencePayload announces a peer going online or offline.
type PresencePayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// TypingPayload is the ephemeral typing indicator; never persisted.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Typing         bool   `json:"typing"`
}

// ReadPayload announces a read receipt to joined users.
type ReadPayload struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	UserID         string    `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
}
