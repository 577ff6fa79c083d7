package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"agency-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, conversation_id, sender_id, content, type, metadata, read_by, edited, edited_at, deleted, created_at`

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	GetByID(ctx context.Context, messageID string) (models.Message, error)
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	Edit(ctx context.Context, messageID, content string, at time.Time) error
	SoftDelete(ctx context.Context, messageID string) error
	MarkRead(ctx context.Context, messageID, userID string, at time.Time) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create persists a message with its initial read-receipt map. The creation
// timestamp is taken from the message so the sender's seed receipt and
// created_at are the same instant.
func (r *MessageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ReadBy == nil {
		msg.ReadBy = models.ReadReceipts{}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, type, metadata, read_by, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.Type, msg.Metadata, msg.ReadBy, msg.CreatedAt)
	return msg, err
}

// GetByID retrieves a single message, deleted ones included.
func (r *MessageRepo) GetByID(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListByConversation returns the most recent visible messages in
// chronological order. Soft-deleted messages are excluded.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+`
        FROM messages
        WHERE conversation_id=$1 AND deleted = FALSE
        ORDER BY created_at DESC
        LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Edit replaces the content and stamps the edit. Deleted messages refuse the
// edit: deletion is terminal.
func (r *MessageRepo) Edit(ctx context.Context, messageID, content string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET content=$2, edited=TRUE, edited_at=$3 WHERE id=$1 AND deleted = FALSE`,
		messageID, content, at)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// SoftDelete marks the message deleted. The row is never removed and the
// call is idempotent.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET deleted = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkRead merges the user into the read-receipt map. Re-reading only
// refreshes the timestamp; entries are never removed.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET read_by = read_by || jsonb_build_object($2::text, to_jsonb($3::timestamptz))
         WHERE id=$1 AND deleted = FALSE`,
		messageID, userID, at)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
