package models

// ChatSettings holds the per-agency chat configuration: assistant and bot
// gates plus optional rate-limit overrides. The zero value means everything
// is disabled, which keeps absent configuration fail-closed.
type ChatSettings struct {
	AgencyID          string  `db:"agency_id" json:"agency_id"`
	AIEnabled         bool    `db:"ai_enabled" json:"ai_enabled"`
	AIModel           string  `db:"ai_model" json:"ai_model"`
	AITemperature     float64 `db:"ai_temperature" json:"ai_temperature"`
	AIMaxTokens       int     `db:"ai_max_tokens" json:"ai_max_tokens"`
	AISystemPrompt    string  `db:"ai_system_prompt" json:"ai_system_prompt"`
	BotEnabled        bool    `db:"bot_enabled" json:"bot_enabled"`
	BotWelcomeMessage string  `db:"bot_welcome_message" json:"bot_welcome_message"`
	MessagesPerMinute int     `db:"messages_per_minute" json:"messages_per_minute"`
	FilesPerMinute    int     `db:"files_per_minute" json:"files_per_minute"`
}
