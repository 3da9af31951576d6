package indexstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Run status values for an index_runs row.
const (
	RunStatusRunning   = "running"
	RunStatusSuccess   = "success"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// Run event categories, recorded alongside progress so a Partial terminal
// status always has at least one explanatory event row.
const (
	EventCategoryInfo     = "info"
	EventCategoryWarning  = "warning"
	EventCategoryError    = "error"
	EventCategoryThrottle = "throttle"
	EventCategoryAccess   = "access"
)

// IndexRun records one indexing job's provenance: an audit trail the
// bucket-info summary alone can't give operators.
type IndexRun struct {
	RunID          string
	Bucket         string
	StartedAt      int64
	EndedAt        *int64
	Status         string
	RequestsMade   int64
	ObjectsIndexed int64
	IsComplete     bool
}

// RunEvent records why a run emitted a notable occurrence: throttling,
// access-denied on a prefix, or any other info/warning/error worth
// surfacing alongside progress.
type RunEvent struct {
	EventID       string
	RunID         string
	OccurredAt    int64
	EventType     string
	EventCategory string
	Detail        string
	Key           string
	Prefix        string
	ErrorCode     string
}

// CreateIndexRun inserts a new run row with status "running".
func CreateIndexRun(ctx context.Context, db *sql.DB, run IndexRun) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO index_runs (run_id, bucket, started_at, status, requests_made, objects_indexed, is_complete)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Bucket, run.StartedAt, run.Status, run.RequestsMade, run.ObjectsIndexed, boolToInt(run.IsComplete))
	if err != nil {
		return fmt.Errorf("create index_run %s: %w", run.RunID, err)
	}
	return nil
}

// UpdateIndexRunProgress advances the running counters for a run in
// progress, without touching status or ended_at.
func UpdateIndexRunProgress(ctx context.Context, db *sql.DB, runID string, requestsMade, objectsIndexed int64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := db.ExecContext(ctx,
		`UPDATE index_runs SET requests_made=?, objects_indexed=? WHERE run_id=?`,
		requestsMade, objectsIndexed, runID)
	if err != nil {
		return fmt.Errorf("update index_run progress %s: %w", runID, err)
	}
	return nil
}

// FinishIndexRun sets the terminal status, ended_at, and completeness of
// a run.
func FinishIndexRun(ctx context.Context, db *sql.DB, runID, status string, endedAt int64, isComplete bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := db.ExecContext(ctx,
		`UPDATE index_runs SET status=?, ended_at=?, is_complete=? WHERE run_id=?`,
		status, endedAt, boolToInt(isComplete), runID)
	if err != nil {
		return fmt.Errorf("finish index_run %s: %w", runID, err)
	}
	return nil
}

// GetIndexRun retrieves a single run by id, or nil if unknown.
func GetIndexRun(ctx context.Context, db *sql.DB, runID string) (*IndexRun, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var run IndexRun
	var isComplete int
	run.RunID = runID

	err := db.QueryRowContext(ctx, `
		SELECT bucket, started_at, ended_at, status, requests_made, objects_indexed, is_complete
		FROM index_runs WHERE run_id=?`, runID,
	).Scan(&run.Bucket, &run.StartedAt, &run.EndedAt, &run.Status, &run.RequestsMade, &run.ObjectsIndexed, &isComplete)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get index_run %s: %w", runID, err)
	}
	run.IsComplete = isComplete != 0
	return &run, nil
}

// GetLatestIndexRun returns the most recently started run for a bucket,
// or nil if the bucket has never been indexed.
func GetLatestIndexRun(ctx context.Context, db *sql.DB, bucket string) (*IndexRun, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var run IndexRun
	var isComplete int
	run.Bucket = bucket

	err := db.QueryRowContext(ctx, `
		SELECT run_id, started_at, ended_at, status, requests_made, objects_indexed, is_complete
		FROM index_runs WHERE bucket=? ORDER BY started_at DESC LIMIT 1`, bucket,
	).Scan(&run.RunID, &run.StartedAt, &run.EndedAt, &run.Status, &run.RequestsMade, &run.ObjectsIndexed, &isComplete)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest index_run for %s: %w", bucket, err)
	}
	run.IsComplete = isComplete != 0
	return &run, nil
}

// RecordRunEvent appends a structured event row for a run.
func RecordRunEvent(ctx context.Context, db *sql.DB, ev RunEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO index_run_events (event_id, run_id, occurred_at, event_type, event_category, detail, key, prefix, error_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.RunID, ev.OccurredAt, ev.EventType, ev.EventCategory, ev.Detail, ev.Key, ev.Prefix, ev.ErrorCode)
	if err != nil {
		return fmt.Errorf("record run event for %s: %w", ev.RunID, err)
	}
	return nil
}

// ListRunEvents returns every event recorded for a run, oldest first.
func ListRunEvents(ctx context.Context, db *sql.DB, runID string) ([]RunEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := db.QueryContext(ctx, `
		SELECT event_id, run_id, occurred_at, event_type, event_category, detail, key, prefix, error_code
		FROM index_run_events WHERE run_id=? ORDER BY occurred_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run events for %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunEvent
	for rows.Next() {
		var ev RunEvent
		if err := rows.Scan(&ev.EventID, &ev.RunID, &ev.OccurredAt, &ev.EventType, &ev.EventCategory,
			&ev.Detail, &ev.Key, &ev.Prefix, &ev.ErrorCode); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run events: %w", err)
	}
	return out, nil
}
