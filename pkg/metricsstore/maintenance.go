package metricsstore

import (
	"context"
	"fmt"
)

// PurgeOldData deletes request, cache-event and daily-stats rows older
// than retentionDays. Returns the number of request and cache-event rows
// removed; the daily-stats count is not reported.
func (s *Store) PurgeOldData(ctx context.Context, retentionDays int) (requestsDeleted, cacheEventsDeleted int64, err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM metrics_requests WHERE occurred_date < date('now', printf('-%d days', ?))`, retentionDays)
	if err != nil {
		return 0, 0, fmt.Errorf("purge requests: %w", err)
	}
	requestsDeleted, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		`DELETE FROM metrics_cache_events WHERE occurred_date < date('now', printf('-%d days', ?))`, retentionDays)
	if err != nil {
		return 0, 0, fmt.Errorf("purge cache events: %w", err)
	}
	cacheEventsDeleted, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		`DELETE FROM metrics_daily_stats WHERE occurred_date < date('now', printf('-%d days', ?))`, retentionDays)
	if err != nil {
		return 0, 0, fmt.Errorf("purge daily stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit purge: %w", err)
	}
	return requestsDeleted, cacheEventsDeleted, nil
}

// ClearAll truncates every metrics table. Used by the "clear all caches
// and metrics" maintenance operation.
func (s *Store) ClearAll(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM metrics_requests`,
		`DELETE FROM metrics_cache_events`,
		`DELETE FROM metrics_daily_stats`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear all metrics: %w", err)
		}
	}

	return tx.Commit()
}
