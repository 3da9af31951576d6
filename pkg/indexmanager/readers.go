package indexmanager

import (
	"context"
	"fmt"
	"strings"

	"github.com/3leaps/gonimbus/pkg/indexstore"
	"github.com/3leaps/gonimbus/pkg/match"
	"github.com/3leaps/gonimbus/pkg/provider"
)

// globSearchFetchCap bounds how many candidate rows a glob search pulls
// out of SQLite before filtering client-side.
const globSearchFetchCap = 5000

// looksLikeGlob reports whether query contains a doublestar metacharacter,
// in which case SearchObjects treats it as a glob pattern instead of a
// plain substring.
func looksLikeGlob(query string) bool {
	return strings.ContainsAny(query, "*?[{")
}

// BucketIndexStats summarizes a bucket's current index state.
type BucketIndexStats struct {
	Bucket                string
	ObjectsCount          int64
	TotalSize             int64
	IsComplete            bool
	InitialIndexCompleted bool
	LatestRun             *indexstore.IndexRun
}

// GetBucketStats returns the root-prefix aggregate plus bucket-info and
// the most recent run, for a bucket-level dashboard summary.
func (m *Manager) GetBucketStats(ctx context.Context, bucket string) (*BucketIndexStats, error) {
	root, err := indexstore.GetPrefixStatus(ctx, m.db, bucket, "")
	if err != nil {
		return nil, fmt.Errorf("get_bucket_index_stats root prefix: %w", err)
	}

	info, err := indexstore.GetBucketInfo(ctx, m.db, bucket)
	if err != nil {
		return nil, fmt.Errorf("get_bucket_index_stats bucket info: %w", err)
	}

	latestRun, err := indexstore.GetLatestIndexRun(ctx, m.db, bucket)
	if err != nil {
		return nil, fmt.Errorf("get_bucket_index_stats latest run: %w", err)
	}

	stats := &BucketIndexStats{Bucket: bucket, LatestRun: latestRun}
	if root != nil {
		stats.ObjectsCount = root.ObjectsCount
		stats.TotalSize = root.TotalSize
		stats.IsComplete = root.IsComplete
	}
	if info != nil {
		stats.InitialIndexCompleted = info.InitialIndexCompleted
	}
	return stats, nil
}

// PrefixStats summarizes a single prefix's index state.
type PrefixStats struct {
	Prefix       string
	ObjectsCount int64
	TotalSize    int64
	IsComplete   bool
	Known        bool
}

// GetPrefixStats returns the aggregate for a specific prefix.
func (m *Manager) GetPrefixStats(ctx context.Context, bucket, prefix string) (*PrefixStats, error) {
	status, err := indexstore.GetPrefixStatus(ctx, m.db, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("get_prefix_index_stats: %w", err)
	}
	if status == nil {
		return &PrefixStats{Prefix: prefix, Known: false}, nil
	}

	complete, err := indexstore.IsPrefixComplete(ctx, m.db, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("get_prefix_index_stats completeness: %w", err)
	}

	return &PrefixStats{
		Prefix: prefix, Known: true,
		ObjectsCount: status.ObjectsCount, TotalSize: status.TotalSize,
		IsComplete: complete,
	}, nil
}

// IsBucketIndexed reports whether the bucket has ever been touched by indexing.
func (m *Manager) IsBucketIndexed(ctx context.Context, bucket string) (bool, error) {
	root, err := indexstore.GetPrefixStatus(ctx, m.db, bucket, "")
	if err != nil {
		return false, fmt.Errorf("is_bucket_indexed: %w", err)
	}
	return root != nil, nil
}

// IsBucketIndexComplete reports recursive completeness of the root prefix.
func (m *Manager) IsBucketIndexComplete(ctx context.Context, bucket string) (bool, error) {
	complete, err := indexstore.IsPrefixComplete(ctx, m.db, bucket, "")
	if err != nil {
		return false, fmt.Errorf("is_bucket_index_complete: %w", err)
	}
	return complete, nil
}

// IsPrefixKnown reports whether a PrefixStatus row exists for prefix.
func (m *Manager) IsPrefixKnown(ctx context.Context, bucket, prefix string) (bool, error) {
	status, err := indexstore.GetPrefixStatus(ctx, m.db, bucket, prefix)
	if err != nil {
		return false, fmt.Errorf("is_prefix_known: %w", err)
	}
	return status != nil, nil
}

// IsPrefixDiscoveredOnly reports whether prefix is known, incomplete, and
// has zero indexed objects beneath it.
func (m *Manager) IsPrefixDiscoveredOnly(ctx context.Context, bucket, prefix string) (bool, error) {
	status, err := indexstore.GetPrefixStatus(ctx, m.db, bucket, prefix)
	if err != nil {
		return false, fmt.Errorf("is_prefix_discovered_only: %w", err)
	}
	if status == nil {
		return false, nil
	}
	return !status.IsComplete && status.ObjectsCount == 0, nil
}

// SearchObjects is the search_objects_in_index operation. A query
// containing a glob metacharacter (*, ?, [, {) is matched as a doublestar
// pattern against the full key; anything else is a plain substring match.
func (m *Manager) SearchObjects(ctx context.Context, bucket, query, prefix string, limit int) ([]indexstore.Object, error) {
	return m.SearchObjectsWithSizeRange(ctx, bucket, query, prefix, "", "", limit)
}

// SearchObjectsWithSizeRange is SearchObjects plus an optional min/max size
// constraint (human-readable sizes like "10MB", either side may be empty).
// The size filter is applied client-side after the substring or glob match,
// since it narrows rather than replaces that match.
func (m *Manager) SearchObjectsWithSizeRange(ctx context.Context, bucket, query, prefix, minSize, maxSize string, limit int) ([]indexstore.Object, error) {
	sizeFilter, err := match.NewSizeFilter(&match.SizeFilterConfig{Min: minSize, Max: maxSize})
	if err != nil {
		return nil, fmt.Errorf("search_objects_in_index: %w", err)
	}

	var objs []indexstore.Object
	if looksLikeGlob(query) {
		objs, err = m.searchObjectsByGlob(ctx, bucket, query, prefix, limit)
	} else {
		objs, err = indexstore.SearchObjectsBySubstring(ctx, m.db, bucket, query, prefix, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search_objects_in_index: %w", err)
	}

	if sizeFilter == nil {
		return objs, nil
	}
	filtered := make([]indexstore.Object, 0, len(objs))
	for _, obj := range objs {
		if sizeFilter.Match(&provider.ObjectSummary{Size: obj.SizeBytes}) {
			filtered = append(filtered, obj)
		}
	}
	return filtered, nil
}

// searchObjectsByGlob filters a bounded candidate set (every indexed
// object under prefix) through a compiled doublestar pattern, since
// SQLite has no collation matching that semantics.
func (m *Manager) searchObjectsByGlob(ctx context.Context, bucket, pattern, prefix string, limit int) ([]indexstore.Object, error) {
	if limit <= 0 {
		limit = 100
	}
	matcher, err := match.New(match.Config{Includes: []string{pattern}, IncludeHidden: true})
	if err != nil {
		return nil, fmt.Errorf("compile glob pattern %q: %w", pattern, err)
	}
	candidates, err := indexstore.ListObjectsByPrefixRecursive(ctx, m.db, bucket, prefix, globSearchFetchCap)
	if err != nil {
		return nil, err
	}
	out := make([]indexstore.Object, 0, limit)
	for _, obj := range candidates {
		if matcher.Match(obj.Key) {
			out = append(out, obj)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// GetObjectsAtPrefix returns every object directly under prefix from the
// index, without touching the remote store. Callers decide whether the
// prefix is trustworthy enough (via IsBucketIndexComplete/GetPrefixStats)
// to serve a navigation-time listing from this alone.
func (m *Manager) GetObjectsAtPrefix(ctx context.Context, bucket, prefix string) ([]indexstore.Object, error) {
	objs, err := indexstore.ListObjectsAtPrefix(ctx, m.db, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("get_objects_at_prefix: %w", err)
	}
	return objs, nil
}

// ClearBucketIndex wipes every trace of a bucket's index state.
func (m *Manager) ClearBucketIndex(ctx context.Context, bucket string) error {
	if err := indexstore.ClearBucketIndex(ctx, m.db, bucket); err != nil {
		return fmt.Errorf("clear_bucket_index: %w", err)
	}
	return nil
}

// GetAllBucketIndexes lists summary stats for every bucket known to this
// profile's index database.
func (m *Manager) GetAllBucketIndexes(ctx context.Context) ([]BucketIndexStats, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT bucket FROM bucket_info ORDER BY bucket`)
	if err != nil {
		return nil, fmt.Errorf("get_all_bucket_indexes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var buckets []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}

	out := make([]BucketIndexStats, 0, len(buckets))
	for _, b := range buckets {
		stats, err := m.GetBucketStats(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, *stats)
	}
	return out, nil
}
