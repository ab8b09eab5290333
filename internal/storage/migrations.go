package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Pet owners
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT UNIQUE NOT NULL,
				name TEXT,
				created_at DATETIME NOT NULL
			);

			-- Pets
			CREATE TABLE IF NOT EXISTS pets (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				name TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			);

			-- Health event records
			CREATE TABLE IF NOT EXISTS records (
				id TEXT PRIMARY KEY,
				pet_id TEXT NOT NULL,
				ts_ns INTEGER NOT NULL,
				shape_code INTEGER NOT NULL CHECK (shape_code BETWEEN 1 AND 7),
				health_status TEXT NOT NULL,
				confidence REAL NOT NULL DEFAULT 0,
				FOREIGN KEY (pet_id) REFERENCES pets(id) ON DELETE CASCADE
			);

			-- Alert rules
			CREATE TABLE IF NOT EXISTS alert_rules (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				pet_id TEXT,
				name TEXT NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				triggers_json TEXT NOT NULL,
				notifications_json TEXT NOT NULL,
				max_per_day INTEGER NOT NULL,
				max_per_week INTEGER NOT NULL,
				cooldown_hours REAL NOT NULL,
				custom_conditions_json TEXT,
				total_triggered INTEGER NOT NULL DEFAULT 0,
				last_triggered_ns INTEGER,
				total_notifications_sent INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			);

			-- Trigger history
			CREATE TABLE IF NOT EXISTS trigger_history (
				id TEXT PRIMARY KEY,
				rule_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				pet_id TEXT NOT NULL,
				anomaly_type TEXT NOT NULL,
				severity TEXT NOT NULL,
				confidence REAL NOT NULL,
				description TEXT NOT NULL,
				delivered_in_app INTEGER NOT NULL DEFAULT 0,
				delivered_email INTEGER NOT NULL DEFAULT 0,
				delivered_push INTEGER NOT NULL DEFAULT 0,
				notifications_sent INTEGER NOT NULL DEFAULT 0,
				triggered_at_ns INTEGER NOT NULL,
				FOREIGN KEY (rule_id) REFERENCES alert_rules(id) ON DELETE CASCADE
			);

			-- In-app notifications
			CREATE TABLE IF NOT EXISTS notifications (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				pet_id TEXT,
				category TEXT NOT NULL,
				title TEXT NOT NULL,
				message TEXT NOT NULL,
				priority TEXT NOT NULL,
				metadata_json TEXT,
				is_read INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_pets_user ON pets(user_id);
			CREATE INDEX IF NOT EXISTS idx_records_pet_ts ON records(pet_id, ts_ns);
			CREATE INDEX IF NOT EXISTS idx_alert_rules_user ON alert_rules(user_id, pet_id);
			CREATE INDEX IF NOT EXISTS idx_alert_rules_active ON alert_rules(is_active);
			CREATE INDEX IF NOT EXISTS idx_trigger_history_rule ON trigger_history(rule_id, triggered_at_ns);
			CREATE INDEX IF NOT EXISTS idx_trigger_history_pet ON trigger_history(pet_id, triggered_at_ns);
			CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		// Run migration in transaction
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
