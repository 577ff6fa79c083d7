package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"agency-chat-service/internal/models"
)

// AuditRepository appends audit records. The log is append-only; nothing
// here updates or deletes.
type AuditRepository interface {
	Record(ctx context.Context, entry models.AuditEntry) error
}

// AuditRepo is a sqlx implementation of AuditRepository.
type AuditRepo struct {
	db *sqlx.DB
}

// NewAuditRepo constructs an AuditRepo.
func NewAuditRepo(db *sqlx.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Record appends one audit entry.
func (r *AuditRepo) Record(ctx context.Context, entry models.AuditEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_audit_log (agency_id, user_id, conversation_id, message_id, action, metadata)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.AgencyID, entry.UserID, entry.ConversationID, entry.MessageID, entry.Action, entry.Metadata)
	return err
}
