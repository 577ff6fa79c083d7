package models

import (
	"time"

	"github.com/lib/pq"
)

// ConversationType classifies a conversation.
type ConversationType string

const (
	ConversationDirect      ConversationType = "direct"
	ConversationGroup       ConversationType = "group"
	ConversationSupport     ConversationType = "support"
	ConversationAIAssistant ConversationType = "ai_assistant"
)

// Conversation represents a tenant-scoped chat thread.
type Conversation struct {
	ID                   string           `db:"id" json:"id"`
	AgencyID             string           `db:"agency_id" json:"agency_id"`
	Type                 ConversationType `db:"type" json:"type"`
	Title                string           `db:"title" json:"title,omitempty"`
	CreatedBy            string           `db:"created_by" json:"created_by"`
	Participants         pq.StringArray   `db:"participants" json:"participants"`
	AllowFileUploads     bool             `db:"allow_file_uploads" json:"allow_file_uploads"`
	NotificationsEnabled bool             `db:"notifications_enabled" json:"notifications_enabled"`
	RetentionDays        int              `db:"retention_days" json:"retention_days"`
	Active               bool             `db:"active" json:"active"`
	LastMessageAt        time.Time        `db:"last_message_at" json:"last_message_at"`
	CreatedAt            time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time        `db:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether the user is on the durable participant list.
func (c Conversation) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}
