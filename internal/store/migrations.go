package store

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key_hash TEXT UNIQUE NOT NULL,
			key_prefix TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			rl_minute INTEGER NOT NULL DEFAULT 60,
			rl_day INTEGER NOT NULL DEFAULT 10000,
			rl_month INTEGER NOT NULL DEFAULT 100000,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS domains (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			domain TEXT UNIQUE NOT NULL,
			rl_minute INTEGER NOT NULL DEFAULT 60,
			rl_day INTEGER NOT NULL DEFAULT 10000,
			rl_month INTEGER NOT NULL DEFAULT 100000,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// One usage table per window granularity. The uniqueness constraint
		// on (identifier, kind, window_key) is what makes the upsert
		// increment atomic.
		`CREATE TABLE IF NOT EXISTS usage_minute (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identifier TEXT NOT NULL,
			kind TEXT NOT NULL,
			window_key TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			UNIQUE(identifier, kind, window_key)
		)`,
		`CREATE TABLE IF NOT EXISTS usage_day (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identifier TEXT NOT NULL,
			kind TEXT NOT NULL,
			window_key TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			UNIQUE(identifier, kind, window_key)
		)`,
		`CREATE TABLE IF NOT EXISTS usage_month (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identifier TEXT NOT NULL,
			kind TEXT NOT NULL,
			window_key TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			UNIQUE(identifier, kind, window_key)
		)`,

		`CREATE TABLE IF NOT EXISTS admins (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			must_change_password INTEGER NOT NULL DEFAULT 0,
			last_login_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS diagnostics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL DEFAULT '',
			client_ip TEXT NOT NULL DEFAULT '',
			origin TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			auth_scheme TEXT NOT NULL DEFAULT '',
			key_presented INTEGER NOT NULL DEFAULT 0,
			key_hash_prefix TEXT NOT NULL DEFAULT '',
			key_exists INTEGER NOT NULL DEFAULT 0,
			key_active INTEGER NOT NULL DEFAULT 0,
			matched_domain TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			counters_json TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(key_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_diagnostics_ts ON diagnostics(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_diagnostics_outcome ON diagnostics(outcome)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// SQLite ALTER TABLE ADD COLUMN fails if the column already
			// exists; treat "duplicate column" as a no-op so the migration
			// list stays idempotent.
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
