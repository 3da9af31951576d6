package metricsstore

import (
	"context"
	"database/sql"
	"fmt"
)

// CacheEvent is one recorded cache lookup: whether the index answered a
// navigation query without a remote listing call, and the requests that
// lookup is estimated to have saved.
type CacheEvent struct {
	EventID               string
	OccurredAt            int64 // epoch ms
	Operation             string
	Hit                   bool
	SavedRequestsEstimate int64
}

// RecordCacheEvent enqueues a non-blocking write of a cache event.
func (s *Store) RecordCacheEvent(ev CacheEvent) {
	s.enqueue(func(ctx context.Context, db *sql.DB) {
		if err := insertCacheEvent(ctx, db, ev); err != nil {
			logWriteErr("record_cache_event", err)
		}
	})
}

// RecordCacheEventSync performs the same write synchronously.
func (s *Store) RecordCacheEventSync(ctx context.Context, ev CacheEvent) error {
	return insertCacheEvent(ctx, s.DB, ev)
}

func insertCacheEvent(ctx context.Context, db *sql.DB, ev CacheEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO metrics_cache_events (event_id, occurred_at, occurred_date, operation, hit, saved_requests_estimate)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		ev.EventID, ev.OccurredAt, dateKey(ev.OccurredAt), ev.Operation, boolToInt(ev.Hit), ev.SavedRequestsEstimate)
	if err != nil {
		return fmt.Errorf("insert cache event: %w", err)
	}
	return nil
}

// CacheSummary is the aggregate hit/miss tally over a retention window.
type CacheSummary struct {
	Hits               int64
	Misses             int64
	SavedRequestsTotal int64
}

// CacheSummaryStats returns the aggregate cache hit/miss counts over the
// last N days.
func (s *Store) CacheSummaryStats(ctx context.Context, days int) (CacheSummary, error) {
	var out CacheSummary
	err := s.DB.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN hit=1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN hit=0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN hit=1 THEN saved_requests_estimate ELSE 0 END), 0)
		FROM metrics_cache_events
		WHERE occurred_date >= date('now', printf('-%d days', ?))`, days,
	).Scan(&out.Hits, &out.Misses, &out.SavedRequestsTotal)
	if err != nil {
		return CacheSummary{}, fmt.Errorf("cache summary: %w", err)
	}
	return out, nil
}

// StorageInfo reports how large the metrics database has grown, for a
// "storage info" dashboard widget.
type StorageInfo struct {
	RequestRowCount    int64
	CacheEventRowCount int64
}

// StorageInfoStats returns current row counts across the metrics tables.
func (s *Store) StorageInfoStats(ctx context.Context) (StorageInfo, error) {
	var out StorageInfo
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM metrics_requests`).Scan(&out.RequestRowCount); err != nil {
		return StorageInfo{}, fmt.Errorf("count requests: %w", err)
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM metrics_cache_events`).Scan(&out.CacheEventRowCount); err != nil {
		return StorageInfo{}, fmt.Errorf("count cache events: %w", err)
	}
	return out, nil
}
