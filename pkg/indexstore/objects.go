package indexstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Object is a row in the objects table: one remote object (or zero-byte
// folder placeholder) known to the index, identified by (bucket, key).
type Object struct {
	Bucket        string
	Key           string
	ParentPrefix  string
	SizeBytes     int64
	LastModified  *int64 // epoch ms
	StorageClass  string
	ETag          string
	IsFolder      bool
	LastIndexedAt int64 // epoch ms
}

// ParentPrefixOf derives the parent prefix of a key: the substring up to
// and including the last '/', or empty for a root-level key. A trailing
// '/' on the key itself (a folder placeholder) is stripped first so a
// folder's parent is its containing prefix, not itself.
func ParentPrefixOf(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return ""
	}
	return trimmed[:idx+1]
}

// UpsertObject inserts or replaces a single object record.
func UpsertObject(ctx context.Context, db *sql.DB, obj Object) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := db.ExecContext(ctx, upsertObjectSQL,
		obj.Bucket, obj.Key, obj.ParentPrefix, obj.SizeBytes, obj.LastModified,
		obj.StorageClass, obj.ETag, boolToInt(obj.IsFolder), obj.LastIndexedAt)
	if err != nil {
		return fmt.Errorf("upsert object %s/%s: %w", obj.Bucket, obj.Key, err)
	}
	return nil
}

const upsertObjectSQL = `
INSERT INTO objects (bucket, key, parent_prefix, size_bytes, last_modified, storage_class, e_tag, is_folder, last_indexed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(bucket, key) DO UPDATE SET
	parent_prefix = excluded.parent_prefix,
	size_bytes = excluded.size_bytes,
	last_modified = excluded.last_modified,
	storage_class = excluded.storage_class,
	e_tag = excluded.e_tag,
	is_folder = excluded.is_folder,
	last_indexed_at = excluded.last_indexed_at`

// UpsertObjectsBatch inserts or replaces many objects in a single
// transaction, used for bulk ingestion from a listing page.
func UpsertObjectsBatch(ctx context.Context, db *sql.DB, objs []Object) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(objs) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertObjectSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert stmt: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, obj := range objs {
		if _, err := stmt.ExecContext(ctx,
			obj.Bucket, obj.Key, obj.ParentPrefix, obj.SizeBytes, obj.LastModified,
			obj.StorageClass, obj.ETag, boolToInt(obj.IsFolder), obj.LastIndexedAt,
		); err != nil {
			return fmt.Errorf("exec upsert for %s: %w", obj.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch upsert: %w", err)
	}
	return nil
}

// DeleteObject removes a single object. Returns whether a row was deleted.
func DeleteObject(ctx context.Context, db *sql.DB, bucket, key string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := db.ExecContext(ctx, `DELETE FROM objects WHERE bucket=? AND key=?`, bucket, key)
	if err != nil {
		return false, fmt.Errorf("delete object %s/%s: %w", bucket, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteObjectsByPrefix removes every object whose key starts with prefix.
// Returns the number of rows deleted.
func DeleteObjectsByPrefix(ctx context.Context, db *sql.DB, bucket, prefix string) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := db.ExecContext(ctx,
		`DELETE FROM objects WHERE bucket=? AND key LIKE ? ESCAPE '\'`,
		bucket, escapeLikePrefix(prefix)+"%")
	if err != nil {
		return 0, fmt.Errorf("delete objects by prefix %s/%s: %w", bucket, prefix, err)
	}
	return res.RowsAffected()
}

// GetObject retrieves a single object, or nil if it is not indexed.
func GetObject(ctx context.Context, db *sql.DB, bucket, key string) (*Object, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var obj Object
	var isFolder int
	err := db.QueryRowContext(ctx,
		`SELECT bucket, key, parent_prefix, size_bytes, last_modified, storage_class, e_tag, is_folder, last_indexed_at
		 FROM objects WHERE bucket=? AND key=?`,
		bucket, key,
	).Scan(&obj.Bucket, &obj.Key, &obj.ParentPrefix, &obj.SizeBytes, &obj.LastModified,
		&obj.StorageClass, &obj.ETag, &isFolder, &obj.LastIndexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	obj.IsFolder = isFolder != 0
	return &obj, nil
}

// SyncPrefixObjects performs the ghost sweep for one listing page: it
// deletes every object whose parent_prefix equals prefix and whose key is
// not present in currentKeys. This is the only deletion path driven by
// live listings (spec §4.1); it must never run against a partial or
// out-of-order page, only the first page of a user-initiated refresh.
func SyncPrefixObjects(ctx context.Context, db *sql.DB, bucket, prefix string, currentKeys []string) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	present := make(map[string]struct{}, len(currentKeys))
	for _, k := range currentKeys {
		present[k] = struct{}{}
	}

	rows, err := db.QueryContext(ctx, `SELECT key FROM objects WHERE bucket=? AND parent_prefix=?`, bucket, prefix)
	if err != nil {
		return 0, fmt.Errorf("list objects at prefix %s/%s: %w", bucket, prefix, err)
	}

	var ghosts []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan key: %w", err)
		}
		if _, ok := present[key]; !ok {
			ghosts = append(ghosts, key)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("iterate objects: %w", err)
	}
	_ = rows.Close()

	if len(ghosts) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM objects WHERE bucket=? AND key=?`)
	if err != nil {
		return 0, fmt.Errorf("prepare delete stmt: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var deleted int64
	for _, key := range ghosts {
		res, err := stmt.ExecContext(ctx, bucket, key)
		if err != nil {
			return 0, fmt.Errorf("delete ghost %s: %w", key, err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ghost sweep: %w", err)
	}
	return deleted, nil
}

// SearchObjectsBySubstring returns objects whose lowercased key contains
// query, optionally constrained to an exact-starts-with prefix, up to
// limit rows.
func SearchObjectsBySubstring(ctx context.Context, db *sql.DB, bucket, query, prefix string, limit int) ([]Object, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 100
	}

	sqlText := `SELECT bucket, key, parent_prefix, size_bytes, last_modified, storage_class, e_tag, is_folder, last_indexed_at
		FROM objects WHERE bucket=? AND instr(lower(key), ?) > 0`
	args := []any{bucket, strings.ToLower(query)}

	if prefix != "" {
		sqlText += ` AND key LIKE ? ESCAPE '\'`
		args = append(args, escapeLikePrefix(prefix)+"%")
	}
	sqlText += ` ORDER BY key LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("search objects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Object
	for rows.Next() {
		var obj Object
		var isFolder int
		if err := rows.Scan(&obj.Bucket, &obj.Key, &obj.ParentPrefix, &obj.SizeBytes, &obj.LastModified,
			&obj.StorageClass, &obj.ETag, &isFolder, &obj.LastIndexedAt); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		obj.IsFolder = isFolder != 0
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return out, nil
}

// ListObjectsAtPrefix returns every object directly under prefix (not
// recursively), ordered by key. Used to serve a navigation-time listing
// straight from the index when the prefix is already known complete,
// without round-tripping to the remote store.
func ListObjectsAtPrefix(ctx context.Context, db *sql.DB, bucket, prefix string) ([]Object, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := db.QueryContext(ctx,
		`SELECT bucket, key, parent_prefix, size_bytes, last_modified, storage_class, e_tag, is_folder, last_indexed_at
		 FROM objects WHERE bucket=? AND parent_prefix=? ORDER BY key`,
		bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list objects at prefix %s/%s: %w", bucket, prefix, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Object
	for rows.Next() {
		var obj Object
		var isFolder int
		if err := rows.Scan(&obj.Bucket, &obj.Key, &obj.ParentPrefix, &obj.SizeBytes, &obj.LastModified,
			&obj.StorageClass, &obj.ETag, &isFolder, &obj.LastIndexedAt); err != nil {
			return nil, fmt.Errorf("scan object at prefix: %w", err)
		}
		obj.IsFolder = isFolder != 0
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects at prefix: %w", err)
	}
	return out, nil
}

// ListObjectsByPrefixRecursive returns every object whose key starts with
// prefix, recursively (not just direct children), ordered by key, up to
// fetchLimit rows. Used as the candidate set for glob-pattern search,
// which filters client-side since SQLite has no glob-matching collation
// compatible with doublestar's double-star semantics.
func ListObjectsByPrefixRecursive(ctx context.Context, db *sql.DB, bucket, prefix string, fetchLimit int) ([]Object, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fetchLimit <= 0 {
		fetchLimit = 5000
	}

	rows, err := db.QueryContext(ctx,
		`SELECT bucket, key, parent_prefix, size_bytes, last_modified, storage_class, e_tag, is_folder, last_indexed_at
		 FROM objects WHERE bucket=? AND key LIKE ? ESCAPE '\' ORDER BY key LIMIT ?`,
		bucket, escapeLikePrefix(prefix)+"%", fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("list objects by prefix recursive %s/%s: %w", bucket, prefix, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Object
	for rows.Next() {
		var obj Object
		var isFolder int
		if err := rows.Scan(&obj.Bucket, &obj.Key, &obj.ParentPrefix, &obj.SizeBytes, &obj.LastModified,
			&obj.StorageClass, &obj.ETag, &isFolder, &obj.LastIndexedAt); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		obj.IsFolder = isFolder != 0
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects by prefix recursive: %w", err)
	}
	return out, nil
}

// escapeLikePrefix escapes LIKE metacharacters in a literal prefix so it
// can be used safely with a trailing '%' wildcard.
func escapeLikePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
