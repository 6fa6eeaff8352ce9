package db

import (
	"database/sql"
	"fmt"
	"log"
)

// Migrate creates the console's own tables. Entities shown in the console
// live in the upstream API; only local session and delivery state is kept
// here.
func Migrate(db *sql.DB) error {
	log.Println("📊 Running migration: console schema")

	statements := []struct {
		label string
		sql   string
	}{
		// ─── console_sessions ────────────────────────────────────────────
		{"console_sessions", `
			CREATE TABLE IF NOT EXISTS console_sessions (
				id          TEXT PRIMARY KEY,
				token       TEXT NOT NULL,
				role        TEXT NOT NULL,
				email       TEXT NOT NULL,
				expires_at  DATETIME NOT NULL,
				created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
				last_seen   DATETIME DEFAULT CURRENT_TIMESTAMP
			);`},
		{"console_sessions indexes", `
			CREATE INDEX IF NOT EXISTS idx_console_sessions_expires ON console_sessions(expires_at);`},

		// ─── action_tokens ───────────────────────────────────────────────
		{"action_tokens", `
			CREATE TABLE IF NOT EXISTS action_tokens (
				token      TEXT PRIMARY KEY,
				action     TEXT NOT NULL,
				target     TEXT NOT NULL DEFAULT '',
				session_id TEXT NOT NULL,
				used       INTEGER DEFAULT 0,
				expires_at DATETIME NOT NULL,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);`},
		{"action_tokens indexes", `
			CREATE INDEX IF NOT EXISTS idx_action_tokens_session ON action_tokens(session_id);
			CREATE INDEX IF NOT EXISTS idx_action_tokens_expires ON action_tokens(expires_at);`},

		// ─── notification_history ────────────────────────────────────────
		{"notification_history", `
			CREATE TABLE IF NOT EXISTS notification_history (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				target        TEXT    NOT NULL,
				event_type    TEXT    NOT NULL,
				alert_id      TEXT,
				message       TEXT    NOT NULL,
				status        TEXT    NOT NULL,
				attempts      INTEGER DEFAULT 1,
				error_message TEXT,
				sent_at       DATETIME,
				created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
			);`},
		{"notification_history indexes", `
			CREATE INDEX IF NOT EXISTS idx_notif_history_created ON notification_history(created_at);
			CREATE INDEX IF NOT EXISTS idx_notif_history_alert   ON notification_history(alert_id);`},
	}

	for _, s := range statements {
		if _, err := db.Exec(s.sql); err != nil {
			return fmt.Errorf("console migration failed at [%s]: %w", s.label, err)
		}
		log.Printf("  ✓ %s", s.label)
	}

	log.Println("📊 Migration completed: console schema ready")
	return nil
}
