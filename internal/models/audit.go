package models

import "time"

// Audit actions recorded by the chat core. The log is append-only.
const (
	AuditSend   = "send"
	AuditRead   = "read"
	AuditEdit   = "edit"
	AuditDelete = "delete"
	AuditJoin   = "join"
	AuditLeave  = "leave"
)

// AuditEntry is one append-only audit record. Metadata carries derived
// values such as content length and message type, never raw content.
type AuditEntry struct {
	ID             int64     `db:"id" json:"id"`
	AgencyID       string    `db:"agency_id" json:"agency_id"`
	UserID         string    `db:"user_id" json:"user_id,omitempty"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	MessageID      string    `db:"message_id" json:"message_id,omitempty"`
	Action         string    `db:"action" json:"action"`
	Metadata       Metadata  `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
