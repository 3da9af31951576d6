// Package indexmanager is the sole gateway for mutations that must
// preserve the completeness invariants: it is the
// home of reconciliation and aggregation on top of pkg/indexstore.
//
// No other package writes objects or prefix statuses directly; the
// indexing driver and the navigation-time reconciler both call through
// here so the invariants always hold after every mutation.
package indexmanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/gonimbus/pkg/indexstore"
	"github.com/3leaps/gonimbus/pkg/provider"
)

// Manager is the invariant-preserving mutation and read surface for one
// profile's index database.
type Manager struct {
	db *sql.DB
}

// New wraps a storage engine connection in a Manager.
func New(db *sql.DB) *Manager {
	return &Manager{db: db}
}

func nowMs() int64 { return time.Now().UnixMilli() }

// recomputeAggregates ensures objects_count/total_size are
// recomputed from Object records after any mutation touching prefix. The
// recompute is best-effort against an existing row only — it never
// creates one, since that is UpsertPrefixStatus's job.
func (m *Manager) recomputeAggregates(ctx context.Context, bucket, prefix string) error {
	existing, err := indexstore.GetPrefixStatus(ctx, m.db, bucket, prefix)
	if err != nil || existing == nil {
		return err
	}

	count, size, err := indexstore.CalculatePrefixStats(ctx, m.db, bucket, prefix)
	if err != nil {
		return fmt.Errorf("recompute aggregates %s/%s: %w", bucket, prefix, err)
	}

	existing.ObjectsCount = count
	existing.TotalSize = size
	if err := indexstore.UpsertPrefixStatus(ctx, m.db, *existing); err != nil {
		return fmt.Errorf("persist recomputed aggregates %s/%s: %w", bucket, prefix, err)
	}
	return nil
}

// UpdateFromListResponse absorbs a successful delimiter-mode listing
// page for prefix.
func (m *Manager) UpdateFromListResponse(ctx context.Context, bucket, prefix string, resp *provider.ListWithDelimiterResult) error {
	if resp == nil {
		return fmt.Errorf("nil list response")
	}

	objs := make([]indexstore.Object, 0, len(resp.Objects))
	now := nowMs()
	for _, o := range resp.Objects {
		objs = append(objs, objectFromSummary(bucket, o, now))
	}
	if err := indexstore.UpsertObjectsBatch(ctx, m.db, objs); err != nil {
		return fmt.Errorf("update_from_list_response upsert objects: %w", err)
	}

	for _, cp := range resp.CommonPrefixes {
		existing, err := indexstore.GetPrefixStatus(ctx, m.db, bucket, cp)
		if err != nil {
			return fmt.Errorf("update_from_list_response check common prefix %s: %w", cp, err)
		}
		if existing == nil {
			// Never overwrite completeness: only create the row if absent.
			if err := indexstore.UpsertPrefixStatus(ctx, m.db, indexstore.PrefixStatus{
				Bucket: bucket, Prefix: cp, IsComplete: false,
			}); err != nil {
				return fmt.Errorf("update_from_list_response create common prefix %s: %w", cp, err)
			}
		}
	}

	count, size, err := indexstore.CalculatePrefixStats(ctx, m.db, bucket, prefix)
	if err != nil {
		return fmt.Errorf("update_from_list_response recompute aggregates: %w", err)
	}

	var continuationToken *string
	if resp.IsTruncated && resp.ContinuationToken != "" {
		continuationToken = &resp.ContinuationToken
	}

	if err := indexstore.UpsertPrefixStatus(ctx, m.db, indexstore.PrefixStatus{
		Bucket: bucket, Prefix: prefix, IsComplete: !resp.IsTruncated,
		ObjectsCount: count, TotalSize: size, ContinuationToken: continuationToken,
	}); err != nil {
		return fmt.Errorf("update_from_list_response update prefix status: %w", err)
	}

	return nil
}

func objectFromSummary(bucket string, o provider.ObjectSummary, indexedAt int64) indexstore.Object {
	var lastModified *int64
	if !o.LastModified.IsZero() {
		ms := o.LastModified.UnixMilli()
		lastModified = &ms
	}
	isFolder := strings.HasSuffix(o.Key, "/")
	return indexstore.Object{
		Bucket:        bucket,
		Key:           o.Key,
		ParentPrefix:  indexstore.ParentPrefixOf(o.Key),
		SizeBytes:     o.Size,
		LastModified:  lastModified,
		ETag:          o.ETag,
		IsFolder:      isFolder,
		LastIndexedAt: indexedAt,
	}
}

// SyncListingPage is UpdateFromListResponse plus a ghost sweep restricted
// to the keys directly at prefix. Must only be called on the first page
// of a user-initiated refresh — a later page would delete
// objects the earlier page had already reconciled.
func (m *Manager) SyncListingPage(ctx context.Context, bucket, prefix string, resp *provider.ListWithDelimiterResult) error {
	if err := m.UpdateFromListResponse(ctx, bucket, prefix, resp); err != nil {
		return err
	}

	keys := make([]string, 0, len(resp.Objects))
	for _, o := range resp.Objects {
		if indexstore.ParentPrefixOf(o.Key) == prefix {
			keys = append(keys, o.Key)
		}
	}

	if _, err := indexstore.SyncPrefixObjects(ctx, m.db, bucket, prefix, keys); err != nil {
		return fmt.Errorf("sync_listing_page ghost sweep: %w", err)
	}

	// UpdateFromListResponse already recomputed prefix's aggregates above,
	// but the sweep can delete objects afterward — recompute again so a
	// swept ghost doesn't leave objects_count/total_size overcounted.
	if err := m.recomputeAggregates(ctx, bucket, prefix); err != nil {
		return fmt.Errorf("sync_listing_page recompute aggregates: %w", err)
	}
	return nil
}

// AddObject is the optimistic-create path: upsert then mark the parent
// chain incomplete, because the new object may live under a prefix the
// index had previously declared complete.
func (m *Manager) AddObject(ctx context.Context, bucket string, obj indexstore.Object) error {
	if obj.LastIndexedAt == 0 {
		obj.LastIndexedAt = nowMs()
	}
	if obj.ParentPrefix == "" && obj.Key != "" {
		obj.ParentPrefix = indexstore.ParentPrefixOf(obj.Key)
	}

	if err := indexstore.UpsertObject(ctx, m.db, obj); err != nil {
		return fmt.Errorf("add_object upsert: %w", err)
	}
	// The object may land under a prefix nobody has scanned yet (I1): make
	// sure a row exists for it and every ancestor, up to and including the
	// root, before flipping completeness on the ones that do exist.
	if err := indexstore.EnsurePrefixStatus(ctx, m.db, bucket, obj.ParentPrefix); err != nil {
		return fmt.Errorf("add_object ensure prefix status: %w", err)
	}
	if err := indexstore.MarkPrefixAndAncestorsIncomplete(ctx, m.db, bucket, obj.ParentPrefix); err != nil {
		return fmt.Errorf("add_object mark incomplete: %w", err)
	}
	if err := m.recomputeAggregates(ctx, bucket, obj.ParentPrefix); err != nil {
		return fmt.Errorf("add_object recompute aggregates: %w", err)
	}
	return nil
}

// RemoveObject is the optimistic-delete path. It always marks the
// computed parent and ancestors incomplete, even if the object was not
// indexed, because the remote change invalidates our belief regardless.
func (m *Manager) RemoveObject(ctx context.Context, bucket, key string) error {
	parent := indexstore.ParentPrefixOf(key)
	if _, err := indexstore.DeleteObject(ctx, m.db, bucket, key); err != nil {
		return fmt.Errorf("remove_object delete: %w", err)
	}
	if err := indexstore.MarkPrefixAndAncestorsIncomplete(ctx, m.db, bucket, parent); err != nil {
		return fmt.Errorf("remove_object mark incomplete: %w", err)
	}
	if err := m.recomputeAggregates(ctx, bucket, parent); err != nil {
		return fmt.Errorf("remove_object recompute aggregates: %w", err)
	}
	return nil
}

// RemoveFolder deletes every object under prefix, the prefix's own
// PrefixStatus row, and marks the parent chain incomplete.
func (m *Manager) RemoveFolder(ctx context.Context, bucket, prefix string) error {
	if _, err := indexstore.DeleteObjectsByPrefix(ctx, m.db, bucket, prefix); err != nil {
		return fmt.Errorf("remove_folder delete objects: %w", err)
	}
	if err := indexstore.DeletePrefixStatus(ctx, m.db, bucket, prefix); err != nil {
		return fmt.Errorf("remove_folder delete prefix status: %w", err)
	}

	parent := indexstore.ParentPrefixOf(strings.TrimSuffix(prefix, "/"))
	if err := indexstore.MarkPrefixAndAncestorsIncomplete(ctx, m.db, bucket, parent); err != nil {
		return fmt.Errorf("remove_folder mark incomplete: %w", err)
	}
	if err := m.recomputeAggregates(ctx, bucket, parent); err != nil {
		return fmt.Errorf("remove_folder recompute aggregates: %w", err)
	}
	return nil
}

// CopyObject upserts the destination object within the same bucket,
// reusing source metadata from the index when available, and marks the
// destination's parent chain incomplete.
func (m *Manager) CopyObject(ctx context.Context, bucket, srcKey, destKey string) error {
	return m.CopyObjectCrossBucket(ctx, bucket, srcKey, bucket, destKey)
}

// CopyObjectCrossBucket is the cross-bucket variant of CopyObject.
func (m *Manager) CopyObjectCrossBucket(ctx context.Context, srcBucket, srcKey, destBucket, destKey string) error {
	size := int64(0)
	storageClass := "STANDARD"

	if src, err := indexstore.GetObject(ctx, m.db, srcBucket, srcKey); err == nil && src != nil {
		size = src.SizeBytes
		if src.StorageClass != "" {
			storageClass = src.StorageClass
		}
	}

	dest := indexstore.Object{
		Bucket: destBucket, Key: destKey, ParentPrefix: indexstore.ParentPrefixOf(destKey),
		SizeBytes: size, StorageClass: storageClass, LastIndexedAt: nowMs(),
	}
	if err := indexstore.UpsertObject(ctx, m.db, dest); err != nil {
		return fmt.Errorf("copy_object upsert destination: %w", err)
	}
	if err := indexstore.EnsurePrefixStatus(ctx, m.db, destBucket, dest.ParentPrefix); err != nil {
		return fmt.Errorf("copy_object ensure prefix status: %w", err)
	}
	if err := indexstore.MarkPrefixAndAncestorsIncomplete(ctx, m.db, destBucket, dest.ParentPrefix); err != nil {
		return fmt.Errorf("copy_object mark incomplete: %w", err)
	}
	if err := m.recomputeAggregates(ctx, destBucket, dest.ParentPrefix); err != nil {
		return fmt.Errorf("copy_object recompute aggregates: %w", err)
	}
	return nil
}
