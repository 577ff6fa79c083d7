package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"agency-chat-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

const conversationColumns = `c.id, c.agency_id, c.type, c.title, c.created_by,
        c.allow_file_uploads, c.notifications_enabled, c.retention_days, c.active,
        c.last_message_at, c.created_at, c.updated_at,
        COALESCE(array_agg(p.user_id) FILTER (WHERE p.user_id IS NOT NULL), '{}') AS participants`

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	Create(ctx context.Context, conv models.Conversation) (models.Conversation, error)
	GetByID(ctx context.Context, id string) (models.Conversation, error)
	ListForUser(ctx context.Context, agencyID, userID string) ([]models.Conversation, error)
	ListForAgency(ctx context.Context, agencyID string) ([]models.Conversation, error)
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id string) error
	Purge(ctx context.Context, id string) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create inserts a conversation and its participants atomically. The creator
// is always added to the participant list.
func (r *ConversationRepo) Create(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO conversations (id, agency_id, type, title, created_by, allow_file_uploads, notifications_enabled, retention_days, active)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
         RETURNING last_message_at, created_at, updated_at`,
		conv.ID, conv.AgencyID, conv.Type, conv.Title, conv.CreatedBy,
		conv.AllowFileUploads, conv.NotificationsEnabled, conv.RetentionDays).
		Scan(&conv.LastMessageAt, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return models.Conversation{}, err
	}
	conv.Active = true

	// dedupe participants and ensure the creator is present
	memberSet := map[string]struct{}{conv.CreatedBy: {}}
	for _, id := range conv.Participants {
		memberSet[id] = struct{}{}
	}
	ids := make([]string, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`,
			conv.ID, id); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	conv.Participants = ids
	return conv, nil
}

// GetByID fetches a conversation with its participant list.
func (r *ConversationRepo) GetByID(ctx context.Context, id string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+`
        FROM conversations c
        LEFT JOIN conversation_participants p ON p.conversation_id = c.id
        WHERE c.id=$1
        GROUP BY c.id`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListForUser returns active conversations the user participates in.
func (r *ConversationRepo) ListForUser(ctx context.Context, agencyID, userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs, `SELECT `+conversationColumns+`
        FROM conversations c
        LEFT JOIN conversation_participants p ON p.conversation_id = c.id
        WHERE c.agency_id=$1 AND c.active = TRUE
          AND EXISTS (SELECT 1 FROM conversation_participants m WHERE m.conversation_id = c.id AND m.user_id=$2)
        GROUP BY c.id
        ORDER BY c.last_message_at DESC`, agencyID, userID)
	return convs, err
}

// ListForAgency returns every active conversation of the agency, for the
// elevated admin view.
func (r *ConversationRepo) ListForAgency(ctx context.Context, agencyID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs, `SELECT `+conversationColumns+`
        FROM conversations c
        LEFT JOIN conversation_participants p ON p.conversation_id = c.id
        WHERE c.agency_id=$1 AND c.active = TRUE
        GROUP BY c.id
        ORDER BY c.last_message_at DESC`, agencyID)
	return convs, err
}

// TouchLastMessage bumps the last-message and updated-at timestamps.
func (r *ConversationRepo) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_at=$2, updated_at=$2 WHERE id=$1`, id, at)
	return err
}

// Deactivate flips the active flag off; existing messages are untouched.
func (r *ConversationRepo) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET active = FALSE, updated_at = NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Purge hard-deletes a conversation and, by cascade, its messages. Admin
// purge path only.
func (r *ConversationRepo) Purge(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id=$1`, id)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}
