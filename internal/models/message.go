package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// MessageType classifies a message.
type MessageType string

const (
	MessageText       MessageType = "text"
	MessageFile       MessageType = "file"
	MessageSystem     MessageType = "system"
	MessageBot        MessageType = "bot"
	MessageAIResponse MessageType = "ai_response"
)

// Metadata is a free-form JSONB payload (file info, reply-to, model name).
type Metadata map[string]any

// Value implements driver.Valuer for JSONB storage.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = Metadata{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.New("metadata: unsupported scan source")
	}
	return json.Unmarshal(b, m)
}

// ReadReceipts maps user IDs to the time they read a message.
// The map only ever grows; re-reading refreshes the timestamp.
type ReadReceipts map[string]time.Time

// Value implements driver.Valuer for JSONB storage.
func (r ReadReceipts) Value() (driver.Value, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *ReadReceipts) Scan(src any) error {
	if src == nil {
		*r = ReadReceipts{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.New("read receipts: unsupported scan source")
	}
	return json.Unmarshal(b, r)
}

// Message represents a chat message. SenderID is empty for
// system/bot/AI-authored messages.
type Message struct {
	ID             string       `db:"id" json:"id"`
	ConversationID string       `db:"conversation_id" json:"conversation_id"`
	SenderID       string       `db:"sender_id" json:"sender_id,omitempty"`
	Content        string       `db:"content" json:"content"`
	Type           MessageType  `db:"type" json:"type"`
	Metadata       Metadata     `db:"metadata" json:"metadata,omitempty"`
	ReadBy         ReadReceipts `db:"read_by" json:"read_by"`
	Edited         bool         `db:"edited" json:"edited"`
	EditedAt       *time.Time   `db:"edited_at" json:"edited_at,omitempty"`
	Deleted        bool         `db:"deleted" json:"deleted"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

// SystemAuthored reports whether the message carries no human sender.
func (m Message) SystemAuthored() bool {
	return m.SenderID == ""
}
