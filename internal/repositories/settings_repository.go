package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"agency-chat-service/internal/models"
)

var ErrSettingsNotFound = errors.New("chat settings not found")

// SettingsRepository reads per-agency chat configuration.
type SettingsRepository interface {
	GetByAgency(ctx context.Context, agencyID string) (models.ChatSettings, error)
}

// SettingsRepo is a sqlx implementation of SettingsRepository.
type SettingsRepo struct {
	db *sqlx.DB
}

// NewSettingsRepo constructs a SettingsRepo.
func NewSettingsRepo(db *sqlx.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

// GetByAgency fetches the agency's chat settings. Absent settings return
// ErrSettingsNotFound; callers treat that as everything-disabled.
func (r *SettingsRepo) GetByAgency(ctx context.Context, agencyID string) (models.ChatSettings, error) {
	var settings models.ChatSettings
	err := r.db.GetContext(ctx, &settings,
		`SELECT agency_id, ai_enabled, ai_model, ai_temperature, ai_max_tokens, ai_system_prompt,
                bot_enabled, bot_welcome_message, messages_per_minute, files_per_minute
         FROM chat_settings WHERE agency_id=$1`, agencyID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatSettings{}, ErrSettingsNotFound
	}
	return settings, err
}
