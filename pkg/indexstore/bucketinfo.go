package indexstore

import (
	"context"
	"database/sql"
	"fmt"
)

// BucketInfo is the per-bucket summary row: whether initial indexing has
// ever completed, how many requests it consumed, and when the bucket was
// last fully scanned.
type BucketInfo struct {
	Bucket                string
	InitialIndexCompleted bool
	InitialIndexRequests  int64
	LastFullScanAt        *int64
}

// GetBucketInfo retrieves a bucket's info row, or nil if the bucket has
// never been touched by indexing.
func GetBucketInfo(ctx context.Context, db *sql.DB, bucket string) (*BucketInfo, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var info BucketInfo
	var completed int
	info.Bucket = bucket

	err := db.QueryRowContext(ctx, `
		SELECT initial_index_completed, initial_index_requests, last_full_scan_at
		FROM bucket_info WHERE bucket=?`, bucket,
	).Scan(&completed, &info.InitialIndexRequests, &info.LastFullScanAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bucket_info %s: %w", bucket, err)
	}
	info.InitialIndexCompleted = completed != 0
	return &info, nil
}

// EnsureBucketInfo creates a zeroed bucket_info row if one does not
// already exist, leaving an existing row untouched.
func EnsureBucketInfo(ctx context.Context, db *sql.DB, bucket string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO bucket_info (bucket, initial_index_completed, initial_index_requests)
		VALUES (?, 0, 0)
		ON CONFLICT(bucket) DO NOTHING`, bucket)
	if err != nil {
		return fmt.Errorf("ensure bucket_info %s: %w", bucket, err)
	}
	return nil
}

// IncrementBucketIndexRequests adds delta to the bucket's request counter,
// creating the row first if it is absent.
func IncrementBucketIndexRequests(ctx context.Context, db *sql.DB, bucket string, delta int64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := EnsureBucketInfo(ctx, db, bucket); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		`UPDATE bucket_info SET initial_index_requests = initial_index_requests + ? WHERE bucket=?`,
		delta, bucket)
	if err != nil {
		return fmt.Errorf("increment bucket_info requests %s: %w", bucket, err)
	}
	return nil
}

// SetBucketIndexCompleted marks whether initial indexing has completed
// for a bucket, and stamps last_full_scan_at when completed is true.
func SetBucketIndexCompleted(ctx context.Context, db *sql.DB, bucket string, completed bool, lastFullScanAt *int64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := EnsureBucketInfo(ctx, db, bucket); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		`UPDATE bucket_info SET initial_index_completed=?, last_full_scan_at=COALESCE(?, last_full_scan_at) WHERE bucket=?`,
		boolToInt(completed), lastFullScanAt, bucket)
	if err != nil {
		return fmt.Errorf("set bucket_info completed %s: %w", bucket, err)
	}
	return nil
}

// ClearBucketIndex removes all indexed state for a bucket: objects,
// prefix statuses, and the bucket_info row itself. Used by the cache/index
// "clear bucket index" operation.
func ClearBucketIndex(ctx context.Context, db *sql.DB, bucket string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`DELETE FROM objects WHERE bucket=?`,
		`DELETE FROM prefix_status WHERE bucket=?`,
		`DELETE FROM bucket_info WHERE bucket=?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, bucket); err != nil {
			return fmt.Errorf("clear bucket index %s: %w", bucket, err)
		}
	}

	return tx.Commit()
}
