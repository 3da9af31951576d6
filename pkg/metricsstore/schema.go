// Package metricsstore is the operational event log: per-request and
// per-cache-lookup records, plus the pre-aggregated read queries a
// dashboard needs. It shares the storage substrate model
// of pkg/indexstore but owns a single, separate database for the whole
// profile set.
package metricsstore

import (
	"context"
	"database/sql"
	"fmt"
)

const SchemaVersion = 1

// Migrate creates (or upgrades) the metrics schema in-place.
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
		`INSERT INTO schema_meta (id, schema_version) VALUES (1, 0) ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS metrics_requests (
			request_id TEXT PRIMARY KEY,
			occurred_at INTEGER NOT NULL,
			occurred_date TEXT NOT NULL,
			operation TEXT NOT NULL,
			category TEXT NOT NULL,
			bucket TEXT NOT NULL,
			key TEXT,
			duration_ms INTEGER NOT NULL,
			bytes INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL,
			error_category TEXT,
			error_message TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_requests_date ON metrics_requests(occurred_date);`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_requests_operation ON metrics_requests(operation, occurred_date);`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_requests_bucket ON metrics_requests(bucket, occurred_date);`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_requests_success ON metrics_requests(success, occurred_date);`,

		`CREATE TABLE IF NOT EXISTS metrics_daily_stats (
			occurred_date TEXT NOT NULL,
			operation TEXT NOT NULL,
			request_count INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			total_bytes INTEGER NOT NULL DEFAULT 0,
			total_duration_ms INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(occurred_date, operation)
		);`,

		`CREATE TABLE IF NOT EXISTS metrics_cache_events (
			event_id TEXT PRIMARY KEY,
			occurred_at INTEGER NOT NULL,
			occurred_date TEXT NOT NULL,
			operation TEXT NOT NULL,
			hit INTEGER NOT NULL,
			saved_requests_estimate INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_cache_events_date ON metrics_cache_events(occurred_date);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec metrics schema statement: %w", err)
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

	return tx.Commit()
}
