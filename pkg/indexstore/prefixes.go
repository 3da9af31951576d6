package indexstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PrefixStatus is the completeness ledger's row for a single prefix
// within a bucket (spec §3 — "the heart of the design").
type PrefixStatus struct {
	Bucket               string
	Prefix               string
	IsComplete           bool
	ObjectsCount         int64
	TotalSize            int64
	ContinuationToken    *string
	LastIndexedKey       *string
	LastSyncStartedAt    *int64
	LastSyncCompletedAt  *int64
}

// ancestorsOf returns every ancestor prefix of p, from its immediate
// parent up to and including the root (""), by splitting on '/'.
func ancestorsOf(p string) []string {
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return nil
	}

	var out []string
	for {
		idx := strings.LastIndex(p, "/")
		if idx < 0 {
			out = append(out, "")
			break
		}
		p = p[:idx+1]
		out = append(out, p)
		p = strings.TrimSuffix(p, "/")
	}
	return out
}

// UpsertPrefixStatus creates or replaces the row for status.Prefix, and
// ensures a prefix row exists by inserting (if absent) an incomplete, zero-aggregate row
// for every ancestor prefix up to and including the root. Ancestor rows
// that already exist are left untouched — this must never overwrite an
// existing completeness bit.
func UpsertPrefixStatus(ctx context.Context, db *sql.DB, status PrefixStatus) error {
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO prefix_status
			(bucket, prefix, is_complete, objects_count, total_size, continuation_token, last_indexed_key, last_sync_started_at, last_sync_completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, prefix) DO UPDATE SET
			is_complete = excluded.is_complete,
			objects_count = excluded.objects_count,
			total_size = excluded.total_size,
			continuation_token = excluded.continuation_token,
			last_indexed_key = excluded.last_indexed_key,
			last_sync_started_at = excluded.last_sync_started_at,
			last_sync_completed_at = excluded.last_sync_completed_at`,
		status.Bucket, status.Prefix, boolToInt(status.IsComplete), status.ObjectsCount, status.TotalSize,
		status.ContinuationToken, status.LastIndexedKey, status.LastSyncStartedAt, status.LastSyncCompletedAt,
	); err != nil {
		return fmt.Errorf("upsert prefix_status %s/%s: %w", status.Bucket, status.Prefix, err)
	}

	if err := ensureAncestors(ctx, tx, status.Bucket, status.Prefix); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert prefix_status: %w", err)
	}
	return nil
}

// ensureAncestors inserts an incomplete, zero-aggregate row for every
// ancestor of prefix that does not already have one. It never touches an
// existing row (ancestor creation must not clobber completeness).
func ensureAncestors(ctx context.Context, tx *sql.Tx, bucket, prefix string) error {
	for _, ancestor := range ancestorsOf(prefix) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO prefix_status (bucket, prefix, is_complete, objects_count, total_size)
			VALUES (?, ?, 0, 0, 0)
			ON CONFLICT(bucket, prefix) DO NOTHING`,
			bucket, ancestor,
		); err != nil {
			return fmt.Errorf("ensure ancestor prefix_status %s/%s: %w", bucket, ancestor, err)
		}
	}
	return nil
}

// EnsurePrefixStatus is the public, standalone form of ancestor creation
// usable outside an UpsertPrefixStatus call — e.g. when the index
// manager needs to guarantee a prefix row exists without touching its
// completeness.
func EnsurePrefixStatus(ctx context.Context, db *sql.DB, bucket, prefix string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO prefix_status (bucket, prefix, is_complete, objects_count, total_size)
		VALUES (?, ?, 0, 0, 0)
		ON CONFLICT(bucket, prefix) DO NOTHING`,
		bucket, prefix,
	); err != nil {
		return fmt.Errorf("ensure prefix_status %s/%s: %w", bucket, prefix, err)
	}

	if err := ensureAncestors(ctx, tx, bucket, prefix); err != nil {
		return err
	}

	return tx.Commit()
}

// MarkPrefixIncomplete flips is_complete to false on exactly the given
// prefix's row, if it exists.
func MarkPrefixIncomplete(ctx context.Context, db *sql.DB, bucket, prefix string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := db.ExecContext(ctx,
		`UPDATE prefix_status SET is_complete=0 WHERE bucket=? AND prefix=?`, bucket, prefix)
	if err != nil {
		return fmt.Errorf("mark prefix incomplete %s/%s: %w", bucket, prefix, err)
	}
	return nil
}

// MarkPrefixAndAncestorsIncomplete flips is_complete to
// false on prefix and every ancestor row that exists, including root.
// Ancestor rows that don't exist are left absent (no creation here).
func MarkPrefixAndAncestorsIncomplete(ctx context.Context, db *sql.DB, bucket, prefix string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE prefix_status SET is_complete=0 WHERE bucket=? AND prefix=?`)
	if err != nil {
		return fmt.Errorf("prepare mark-incomplete stmt: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	chain := append([]string{prefix}, ancestorsOf(prefix)...)
	for _, p := range chain {
		if _, err := stmt.ExecContext(ctx, bucket, p); err != nil {
			return fmt.Errorf("mark incomplete %s/%s: %w", bucket, p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark-incomplete: %w", err)
	}
	return nil
}

// DeletePrefixStatus removes the row for a single prefix.
func DeletePrefixStatus(ctx context.Context, db *sql.DB, bucket, prefix string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := db.ExecContext(ctx, `DELETE FROM prefix_status WHERE bucket=? AND prefix=?`, bucket, prefix)
	if err != nil {
		return fmt.Errorf("delete prefix_status %s/%s: %w", bucket, prefix, err)
	}
	return nil
}

// IsPrefixSelfComplete checks only the row itself, with no recursive
// descendant check.
func IsPrefixSelfComplete(ctx context.Context, db *sql.DB, bucket, prefix string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var isComplete int
	err := db.QueryRowContext(ctx,
		`SELECT is_complete FROM prefix_status WHERE bucket=? AND prefix=?`, bucket, prefix,
	).Scan(&isComplete)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check prefix self-complete %s/%s: %w", bucket, prefix, err)
	}
	return isComplete != 0, nil
}

// IsPrefixComplete reports whether prefix is effectively complete: iff its own
// row is_complete is true and no strict descendant row has is_complete
// false.
func IsPrefixComplete(ctx context.Context, db *sql.DB, bucket, prefix string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	selfComplete, err := IsPrefixSelfComplete(ctx, db, bucket, prefix)
	if err != nil {
		return false, err
	}
	if !selfComplete {
		return false, nil
	}

	var incompleteDescendants int64
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM prefix_status
		 WHERE bucket=? AND prefix != ? AND prefix LIKE ? ESCAPE '\' AND is_complete=0`,
		bucket, prefix, escapeLikePrefix(prefix)+"%",
	).Scan(&incompleteDescendants)
	if err != nil {
		return false, fmt.Errorf("check descendant completeness %s/%s: %w", bucket, prefix, err)
	}

	return incompleteDescendants == 0, nil
}

// CleanupOrphanPrefixStatus deletes prefix_status rows (other than root)
// for which no object with a key starting with that prefix exists.
func CleanupOrphanPrefixStatus(ctx context.Context, db *sql.DB, bucket string) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := db.ExecContext(ctx, `
		DELETE FROM prefix_status
		WHERE bucket = ? AND prefix != '' AND NOT EXISTS (
			SELECT 1 FROM objects
			WHERE objects.bucket = prefix_status.bucket
			  AND objects.key LIKE prefix_status.prefix || '%'
		)`, bucket)
	if err != nil {
		return 0, fmt.Errorf("cleanup orphan prefix_status: %w", err)
	}
	return res.RowsAffected()
}

// CalculatePrefixStats returns the recursive object count and total size
// under prefix (LIKE prefix%).
func CalculatePrefixStats(ctx context.Context, db *sql.DB, bucket, prefix string) (count int64, totalSize int64, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM objects WHERE bucket=? AND key LIKE ? ESCAPE '\'`,
		bucket, escapeLikePrefix(prefix)+"%",
	).Scan(&count, &totalSize)
	if err != nil {
		return 0, 0, fmt.Errorf("calculate prefix stats %s/%s: %w", bucket, prefix, err)
	}
	return count, totalSize, nil
}

// GetPrefixStatus retrieves a single prefix_status row, or nil if unknown.
func GetPrefixStatus(ctx context.Context, db *sql.DB, bucket, prefix string) (*PrefixStatus, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var s PrefixStatus
	var isComplete int
	s.Bucket, s.Prefix = bucket, prefix

	err := db.QueryRowContext(ctx, `
		SELECT is_complete, objects_count, total_size, continuation_token, last_indexed_key, last_sync_started_at, last_sync_completed_at
		FROM prefix_status WHERE bucket=? AND prefix=?`, bucket, prefix,
	).Scan(&isComplete, &s.ObjectsCount, &s.TotalSize, &s.ContinuationToken, &s.LastIndexedKey,
		&s.LastSyncStartedAt, &s.LastSyncCompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prefix_status %s/%s: %w", bucket, prefix, err)
	}
	s.IsComplete = isComplete != 0
	return &s, nil
}
