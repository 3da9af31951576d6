package metricsstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Request operation categories.
const (
	CategoryGet    = "GET"
	CategoryPut    = "PUT"
	CategoryList   = "LIST"
	CategoryDelete = "DELETE"
)

// RequestEvent is one recorded remote operation.
type RequestEvent struct {
	RequestID     string
	OccurredAt    int64 // epoch ms
	Operation     string
	Category      string
	Bucket        string
	Key           string
	DurationMs    int64
	Bytes         int64
	Success       bool
	ErrorCategory string
	ErrorMessage  string
}

func dateKey(epochMs int64) string {
	return time.UnixMilli(epochMs).UTC().Format("2006-01-02")
}

// RecordRequest enqueues a non-blocking write of a request event. The
// caller's goroutine never waits on the database.
func (s *Store) RecordRequest(ev RequestEvent) {
	s.enqueue(func(ctx context.Context, db *sql.DB) {
		if err := insertRequest(ctx, db, ev); err != nil {
			logWriteErr("record_request", err)
		}
	})
}

// RecordRequestSync performs the same write synchronously, for callers
// (tests, maintenance jobs) that need to observe the result immediately.
func (s *Store) RecordRequestSync(ctx context.Context, ev RequestEvent) error {
	return insertRequest(ctx, s.DB, ev)
}

func insertRequest(ctx context.Context, db *sql.DB, ev RequestEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	date := dateKey(ev.OccurredAt)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metrics_requests
			(request_id, occurred_at, occurred_date, operation, category, bucket, key, duration_ms, bytes, success, error_category, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO NOTHING`,
		ev.RequestID, ev.OccurredAt, date, ev.Operation, ev.Category, ev.Bucket, ev.Key,
		ev.DurationMs, ev.Bytes, boolToInt(ev.Success), nullIfEmpty(ev.ErrorCategory), nullIfEmpty(ev.ErrorMessage),
	); err != nil {
		return fmt.Errorf("insert request event: %w", err)
	}

	successInc, failureInc := 0, 0
	if ev.Success {
		successInc = 1
	} else {
		failureInc = 1
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metrics_daily_stats (occurred_date, operation, request_count, success_count, failure_count, total_bytes, total_duration_ms)
		VALUES (?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT(occurred_date, operation) DO UPDATE SET
			request_count = request_count + 1,
			success_count = success_count + excluded.success_count,
			failure_count = failure_count + excluded.failure_count,
			total_bytes = total_bytes + excluded.total_bytes,
			total_duration_ms = total_duration_ms + excluded.total_duration_ms`,
		date, ev.Operation, successInc, failureInc, ev.Bytes, ev.DurationMs,
	); err != nil {
		return fmt.Errorf("upsert daily stats: %w", err)
	}

	return tx.Commit()
}

// TodayStats summarizes today's (UTC) request volume.
type TodayStats struct {
	RequestCount int64
	SuccessCount int64
	FailureCount int64
	TotalBytes   int64
}

// TodayStats returns today's aggregate request counters.
func (s *Store) TodayStats(ctx context.Context, nowEpochMs int64) (TodayStats, error) {
	var out TodayStats
	err := s.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(request_count),0), COALESCE(SUM(success_count),0), COALESCE(SUM(failure_count),0), COALESCE(SUM(total_bytes),0)
		FROM metrics_daily_stats WHERE occurred_date=?`, dateKey(nowEpochMs),
	).Scan(&out.RequestCount, &out.SuccessCount, &out.FailureCount, &out.TotalBytes)
	if err != nil {
		return TodayStats{}, fmt.Errorf("today stats: %w", err)
	}
	return out, nil
}

// DailyHistoryRow is one day's aggregate, for an N-day history chart.
type DailyHistoryRow struct {
	Date         string
	RequestCount int64
	SuccessCount int64
	FailureCount int64
	TotalBytes   int64
}

// History returns per-day aggregates for the most recent N days.
func (s *Store) History(ctx context.Context, days int) ([]DailyHistoryRow, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT occurred_date, SUM(request_count), SUM(success_count), SUM(failure_count), SUM(total_bytes)
		FROM metrics_daily_stats
		GROUP BY occurred_date
		ORDER BY occurred_date DESC
		LIMIT ?`, days)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DailyHistoryRow
	for rows.Next() {
		var r DailyHistoryRow
		if err := rows.Scan(&r.Date, &r.RequestCount, &r.SuccessCount, &r.FailureCount, &r.TotalBytes); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HourlyBucket is one hour's request count, for an intraday histogram.
type HourlyBucket struct {
	Hour  int
	Count int64
}

// HourlyHistogram buckets today's requests by hour-of-day (UTC).
func (s *Store) HourlyHistogram(ctx context.Context, nowEpochMs int64) ([]HourlyBucket, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT CAST(strftime('%H', occurred_at/1000, 'unixepoch') AS INTEGER) AS hour, COUNT(*)
		FROM metrics_requests
		WHERE occurred_date = ?
		GROUP BY hour
		ORDER BY hour`, dateKey(nowEpochMs))
	if err != nil {
		return nil, fmt.Errorf("hourly histogram: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []HourlyBucket
	for rows.Next() {
		var b HourlyBucket
		if err := rows.Scan(&b.Hour, &b.Count); err != nil {
			return nil, fmt.Errorf("scan hourly bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// OperationStats is the per-operation aggregate over a retention window.
type OperationStats struct {
	Operation    string
	RequestCount int64
	FailureCount int64
	TotalBytes   int64
}

// ByOperation aggregates requests by operation over the last N days.
func (s *Store) ByOperation(ctx context.Context, days int) ([]OperationStats, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT operation, SUM(request_count), SUM(failure_count), SUM(total_bytes)
		FROM metrics_daily_stats
		WHERE occurred_date >= date('now', printf('-%d days', ?))
		GROUP BY operation
		ORDER BY SUM(request_count) DESC`, days)
	if err != nil {
		return nil, fmt.Errorf("by operation: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []OperationStats
	for rows.Next() {
		var o OperationStats
		if err := rows.Scan(&o.Operation, &o.RequestCount, &o.FailureCount, &o.TotalBytes); err != nil {
			return nil, fmt.Errorf("scan operation stats: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ErrorCategoryStats is the count of failures per error category.
type ErrorCategoryStats struct {
	ErrorCategory string
	Count         int64
}

// ByErrorCategory aggregates failures by error category over N days.
func (s *Store) ByErrorCategory(ctx context.Context, days int) ([]ErrorCategoryStats, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT COALESCE(error_category, 'unknown'), COUNT(*)
		FROM metrics_requests
		WHERE success = 0 AND occurred_date >= date('now', printf('-%d days', ?))
		GROUP BY error_category
		ORDER BY COUNT(*) DESC`, days)
	if err != nil {
		return nil, fmt.Errorf("by error category: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ErrorCategoryStats
	for rows.Next() {
		var e ErrorCategoryStats
		if err := rows.Scan(&e.ErrorCategory, &e.Count); err != nil {
			return nil, fmt.Errorf("scan error category: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// BucketStats is the per-bucket request volume over a retention window.
type BucketStats struct {
	Bucket       string
	RequestCount int64
	TotalBytes   int64
}

// TopBuckets returns the busiest buckets over the last N days, up to limit.
func (s *Store) TopBuckets(ctx context.Context, days, limit int) ([]BucketStats, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT bucket, COUNT(*), COALESCE(SUM(bytes),0)
		FROM metrics_requests
		WHERE occurred_date >= date('now', printf('-%d days', ?))
		GROUP BY bucket
		ORDER BY COUNT(*) DESC
		LIMIT ?`, days, limit)
	if err != nil {
		return nil, fmt.Errorf("top buckets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []BucketStats
	for rows.Next() {
		var b BucketStats
		if err := rows.Scan(&b.Bucket, &b.RequestCount, &b.TotalBytes); err != nil {
			return nil, fmt.Errorf("scan bucket stats: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// RecentRequests returns the most recent N request events, newest first.
func (s *Store) RecentRequests(ctx context.Context, limit int) ([]RequestEvent, error) {
	return queryRequests(ctx, s.DB, `SELECT request_id, occurred_at, operation, category, bucket, key, duration_ms, bytes, success, error_category, error_message
		FROM metrics_requests ORDER BY occurred_at DESC LIMIT ?`, limit)
}

// FailedRequests returns the most recent N failed request events, newest first.
func (s *Store) FailedRequests(ctx context.Context, limit int) ([]RequestEvent, error) {
	return queryRequests(ctx, s.DB, `SELECT request_id, occurred_at, operation, category, bucket, key, duration_ms, bytes, success, error_category, error_message
		FROM metrics_requests WHERE success=0 ORDER BY occurred_at DESC LIMIT ?`, limit)
}

func queryRequests(ctx context.Context, db *sql.DB, query string, limit int) ([]RequestEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RequestEvent
	for rows.Next() {
		var ev RequestEvent
		var success int
		var errCategory, errMessage sql.NullString
		if err := rows.Scan(&ev.RequestID, &ev.OccurredAt, &ev.Operation, &ev.Category, &ev.Bucket, &ev.Key,
			&ev.DurationMs, &ev.Bytes, &success, &errCategory, &errMessage); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		ev.Success = success != 0
		ev.ErrorCategory = errCategory.String
		ev.ErrorMessage = errMessage.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
