package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return database, nil
}

func runMigrations(database *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
            id TEXT PRIMARY KEY,
            agency_id TEXT NOT NULL,
            type TEXT NOT NULL,
            title TEXT NOT NULL DEFAULT '',
            created_by TEXT NOT NULL,
            allow_file_uploads BOOLEAN NOT NULL DEFAULT TRUE,
            notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
            retention_days INT NOT NULL DEFAULT 0,
            active BOOLEAN NOT NULL DEFAULT TRUE,
            last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS conversation_participants (
            conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            PRIMARY KEY (conversation_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id TEXT NOT NULL DEFAULT '',
            content TEXT NOT NULL,
            type TEXT NOT NULL DEFAULT 'text',
            metadata JSONB NOT NULL DEFAULT '{}',
            read_by JSONB NOT NULL DEFAULT '{}',
            edited BOOLEAN NOT NULL DEFAULT FALSE,
            edited_at TIMESTAMPTZ,
            deleted BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
            ON messages (conversation_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS chat_settings (
            agency_id TEXT PRIMARY KEY,
            ai_enabled BOOLEAN NOT NULL DEFAULT FALSE,
            ai_model TEXT NOT NULL DEFAULT '',
            ai_temperature DOUBLE PRECISION NOT NULL DEFAULT 0.7,
            ai_max_tokens INT NOT NULL DEFAULT 1024,
            ai_system_prompt TEXT NOT NULL DEFAULT '',
            bot_enabled BOOLEAN NOT NULL DEFAULT FALSE,
            bot_welcome_message TEXT NOT NULL DEFAULT '',
            messages_per_minute INT NOT NULL DEFAULT 0,
            files_per_minute INT NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS chat_audit_log (
            id BIGSERIAL PRIMARY KEY,
            agency_id TEXT NOT NULL,
            user_id TEXT NOT NULL DEFAULT '',
            conversation_id TEXT NOT NULL,
            message_id TEXT NOT NULL DEFAULT '',
            action TEXT NOT NULL,
            metadata JSONB NOT NULL DEFAULT '{}',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_chat_audit_agency
            ON chat_audit_log (agency_id, created_at);`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
