package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SchemaVersion is bumped whenever an additive migration is introduced.
const SchemaVersion = 2

// migrate creates the schema if absent and applies additive-only upgrades:
// new columns with defaults, new indexes, never destructive changes. All
// DDL commits before the store accepts writes.
func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version) VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			params TEXT,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			schedule_at INTEGER,
			started_at INTEGER,
			finished_at INTEGER,
			timeout_sec INTEGER NOT NULL DEFAULT 1800,
			worker_id TEXT,
			result TEXT,
			progress TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status_schedule ON tasks(status, schedule_at, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_type_status ON tasks(type, status);`,

		`CREATE TABLE IF NOT EXISTS employers (
			hh_id TEXT PRIMARY KEY,
			name TEXT,
			url TEXT,
			raw_json TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS vacancies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hh_id TEXT NOT NULL UNIQUE,
			title TEXT,
			company_name TEXT,
			employer_hh_id TEXT,
			salary_from INTEGER,
			salary_to INTEGER,
			currency TEXT,
			experience TEXT,
			schedule TEXT,
			employment TEXT,
			description TEXT,
			key_skills TEXT,
			area TEXT,
			published_at INTEGER,
			url TEXT,
			filter_id TEXT,
			content_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			is_processed INTEGER NOT NULL DEFAULT 0,
			synced_host2 INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(employer_hh_id) REFERENCES employers(hh_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_vacancies_created_at ON vacancies(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_vacancies_is_processed ON vacancies(is_processed);`,
		`CREATE INDEX IF NOT EXISTS idx_vacancies_synced_host2 ON vacancies(synced_host2);`,

		`CREATE TABLE IF NOT EXISTS plugin_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			vacancy_id INTEGER NOT NULL,
			plugin_name TEXT NOT NULL,
			result TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(vacancy_id) REFERENCES vacancies(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_plugin_results_vacancy_plugin ON plugin_results(vacancy_id, plugin_name, created_at);`,

		`CREATE TABLE IF NOT EXISTS system_processes (
			name TEXT PRIMARY KEY,
			pid INTEGER,
			cmdline TEXT,
			host TEXT,
			port INTEGER,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS system_health (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			cpu_pct REAL,
			mem_pct REAL,
			disk_pct REAL,
			db_size_mb REAL,
			active_tasks INTEGER,
			host_status TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_system_health_ts ON system_health(ts);`,

		`CREATE TABLE IF NOT EXISTS logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			level TEXT NOT NULL,
			module TEXT,
			function TEXT,
			message TEXT,
			context TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_logs_ts ON logs(ts);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("store: read schema_version: %w", err)
	}

	if current < 2 {
		alters := []string{
			`ALTER TABLE vacancies ADD COLUMN created_at INTEGER NOT NULL DEFAULT 0;`,
			`ALTER TABLE vacancies ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0;`,
			`ALTER TABLE vacancies ADD COLUMN is_processed INTEGER NOT NULL DEFAULT 0;`,
			`ALTER TABLE vacancies ADD COLUMN synced_host2 INTEGER NOT NULL DEFAULT 0;`,
			`ALTER TABLE employers ADD COLUMN url TEXT;`,
			`ALTER TABLE employers ADD COLUMN raw_json TEXT;`,
		}
		if err := execIdempotentAlters(ctx, tx, alters); err != nil {
			return err
		}
	}

	if current != SchemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, SchemaVersion); err != nil {
			return fmt.Errorf("store: update schema_version: %w", err)
		}
	}

	return tx.Commit()
}

// execIdempotentAlters runs ALTER TABLE ADD COLUMN statements, tolerating
// "duplicate column" errors from a prior partial run so migrations stay
// safe to re-apply.
func execIdempotentAlters(ctx context.Context, tx *sql.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			msg := err.Error()
			if strings.Contains(msg, "duplicate column name") || strings.Contains(msg, "already exists") {
				continue
			}
			return fmt.Errorf("store: exec migration statement: %w", err)
		}
	}
	return nil
}
