package indexstore

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current on-disk schema version for a profile's
// index database. Migrations are forward-only.
const SchemaVersion = 1

// Migrate creates (or upgrades) the index schema in-place.
//
// The schema supports:
//   - Object records, keyed by (bucket, key)
//   - Prefix-status records, the completeness ledger
//   - BucketInfo, one row per bucket
//   - IndexRun / IndexRunEvent provenance for indexing jobs (SPEC_FULL §3)
func Migrate(ctx context.Context, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS objects (
			bucket TEXT NOT NULL,
			key TEXT NOT NULL,
			parent_prefix TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			last_modified INTEGER,
			storage_class TEXT,
			e_tag TEXT,
			is_folder INTEGER NOT NULL DEFAULT 0,
			last_indexed_at INTEGER NOT NULL,
			PRIMARY KEY(bucket, key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_objects_parent_prefix ON objects(bucket, parent_prefix);`,

		`CREATE TABLE IF NOT EXISTS prefix_status (
			bucket TEXT NOT NULL,
			prefix TEXT NOT NULL,
			is_complete INTEGER NOT NULL DEFAULT 0,
			objects_count INTEGER NOT NULL DEFAULT 0,
			total_size INTEGER NOT NULL DEFAULT 0,
			continuation_token TEXT,
			last_indexed_key TEXT,
			last_sync_started_at INTEGER,
			last_sync_completed_at INTEGER,
			PRIMARY KEY(bucket, prefix)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_prefix_status_complete ON prefix_status(bucket, is_complete);`,

		`CREATE TABLE IF NOT EXISTS bucket_info (
			bucket TEXT PRIMARY KEY,
			initial_index_completed INTEGER NOT NULL DEFAULT 0,
			initial_index_requests INTEGER NOT NULL DEFAULT 0,
			last_full_scan_at INTEGER
		);`,

		`CREATE TABLE IF NOT EXISTS index_runs (
			run_id TEXT PRIMARY KEY,
			bucket TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			status TEXT NOT NULL,
			requests_made INTEGER NOT NULL DEFAULT 0,
			objects_indexed INTEGER NOT NULL DEFAULT 0,
			is_complete INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_index_runs_bucket ON index_runs(bucket, started_at);`,

		`CREATE TABLE IF NOT EXISTS index_run_events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			occurred_at INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			event_category TEXT NOT NULL,
			detail TEXT,
			key TEXT,
			prefix TEXT,
			error_code TEXT,
			FOREIGN KEY(run_id) REFERENCES index_runs(run_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_index_run_events_run_id ON index_run_events(run_id);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	if current != SchemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, SchemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
