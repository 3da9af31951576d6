package core

import (
	"context"
	"fmt"
	"time"

	"github.com/3leaps/gonimbus/pkg/eventbus"
	"github.com/3leaps/gonimbus/pkg/indexstore"
	"github.com/3leaps/gonimbus/pkg/metricsstore"
	"github.com/3leaps/gonimbus/pkg/provider"
	"github.com/google/uuid"
)

// ListResponse is the list_objects operation's payload.
type ListResponse struct {
	Objects           []indexstore.Object
	CommonPrefixes    []string
	ContinuationToken string
	IsTruncated       bool
	// ServedFromIndex is true when the prefix was already recursively
	// complete and the call was answered from the index alone, without
	// a round trip to the remote store.
	ServedFromIndex bool
}

// ListObjectsOptions configures the list_objects operation.
type ListObjectsOptions struct {
	Prefix            string
	ContinuationToken string
	MaxKeys           int
	UseDelimiter      bool
	// SyncIndex opts into the ghost-sweep reconciliation on the first
	// page of a user-initiated refresh. Must not be set
	// on preload or subsequent-page calls.
	SyncIndex bool
}

// ListObjects is the navigation-time reconciliation operation: when
// possible it serves straight from the index (recording a cache
// hit/saved-request in the metrics store); otherwise it fetches a live
// page from the S3 listing collaborator, reconciles it into the index
// via the index manager, and returns it.
func (c *Core) ListObjects(ctx context.Context, profileID, bucket string, opts ListObjectsOptions) (*ListResponse, error) {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	// Serving from the index is only safe on an unpaginated, non-refresh
	// navigation: a continuation token or an explicit sync means the
	// caller needs live data.
	if !opts.SyncIndex && opts.ContinuationToken == "" {
		if stats, statsErr := handle.manager.GetPrefixStats(ctx, bucket, opts.Prefix); statsErr == nil && stats.Known && stats.IsComplete {
			if objs, readErr := handle.manager.GetObjectsAtPrefix(ctx, bucket, opts.Prefix); readErr == nil {
				c.metrics.RecordCacheEvent(metricsstore.CacheEvent{
					EventID: uuid.NewString(), OccurredAt: start.UnixMilli(),
					Operation: "list_objects", Hit: true, SavedRequestsEstimate: 1,
				})
				return &ListResponse{Objects: objs, ServedFromIndex: true}, nil
			}
		}
	}

	c.metrics.RecordCacheEvent(metricsstore.CacheEvent{
		EventID: uuid.NewString(), OccurredAt: start.UnixMilli(), Operation: "list_objects", Hit: false,
	})

	lst, err := c.newLister(ctx, profileID, bucket)
	if err != nil {
		return nil, err
	}

	resp, err := c.fetchPage(ctx, lst, opts)
	duration := time.Since(start)
	c.recordListRequest(profileID, bucket, opts.Prefix, duration, err)
	if err != nil {
		return nil, fmt.Errorf("list_objects %s/%s: %w", bucket, opts.Prefix, err)
	}

	if opts.SyncIndex && opts.ContinuationToken == "" {
		if err := handle.manager.SyncListingPage(ctx, bucket, opts.Prefix, resp); err != nil {
			return nil, fmt.Errorf("list_objects sync_index %s/%s: %w", bucket, opts.Prefix, err)
		}
	} else {
		if err := handle.manager.UpdateFromListResponse(ctx, bucket, opts.Prefix, resp); err != nil {
			return nil, fmt.Errorf("list_objects reconcile %s/%s: %w", bucket, opts.Prefix, err)
		}
	}

	out := make([]indexstore.Object, 0, len(resp.Objects))
	now := time.Now().UnixMilli()
	for _, o := range resp.Objects {
		out = append(out, indexstore.Object{
			Bucket: bucket, Key: o.Key, ParentPrefix: indexstore.ParentPrefixOf(o.Key),
			SizeBytes: o.Size, ETag: o.ETag, LastIndexedAt: now,
		})
	}

	return &ListResponse{
		Objects: out, CommonPrefixes: resp.CommonPrefixes,
		ContinuationToken: resp.ContinuationToken, IsTruncated: resp.IsTruncated,
	}, nil
}

func (c *Core) fetchPage(ctx context.Context, lst lister, opts ListObjectsOptions) (*provider.ListWithDelimiterResult, error) {
	if opts.UseDelimiter {
		return lst.ListWithDelimiter(ctx, provider.ListWithDelimiterOptions{
			Prefix: opts.Prefix, Delimiter: "/",
			ContinuationToken: opts.ContinuationToken, MaxKeys: opts.MaxKeys,
		})
	}

	flat, err := lst.List(ctx, provider.ListOptions{
		Prefix: opts.Prefix, ContinuationToken: opts.ContinuationToken, MaxKeys: opts.MaxKeys,
	})
	if err != nil {
		return nil, err
	}
	return &provider.ListWithDelimiterResult{
		Objects: flat.Objects, ContinuationToken: flat.ContinuationToken, IsTruncated: flat.IsTruncated,
	}, nil
}

func (c *Core) recordListRequest(profileID, bucket, prefix string, duration time.Duration, err error) {
	ev := metricsstore.RequestEvent{
		RequestID: uuid.NewString(), OccurredAt: time.Now().UnixMilli(), Operation: "list_objects", Category: metricsstore.CategoryList,
		Bucket: bucket, Key: prefix, DurationMs: duration.Milliseconds(), Success: err == nil,
	}
	if err != nil {
		ev.ErrorMessage = err.Error()
	}
	c.metrics.RecordRequest(ev)
	c.bus.PublishRequestMetric(eventbus.RequestMetric{
		Profile: profileID, Bucket: bucket, Operation: ev.Operation, Category: ev.Category,
		DurationMs: ev.DurationMs, Success: ev.Success,
	})
}

// NotifyObjectCreated absorbs an externally-completed upload
// into the index via the optimistic-create path, and republishes it on
// the event bus for subscribers.
func (c *Core) NotifyObjectCreated(ctx context.Context, profileID, bucket, key string, size int64, contentType string) error {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return err
	}
	if err := handle.manager.AddObject(ctx, bucket, indexstore.Object{Bucket: bucket, Key: key, SizeBytes: size}); err != nil {
		return fmt.Errorf("notify_object_created %s/%s: %w", bucket, key, err)
	}
	c.bus.PublishObjectCompleted(eventbus.ObjectCompleted{
		Profile: profileID, Bucket: bucket, Key: key, Size: size, ContentType: contentType,
	})
	return nil
}

// NotifyObjectDeleted absorbs an externally-observed delete into the
// index via the optimistic-delete path.
func (c *Core) NotifyObjectDeleted(ctx context.Context, profileID, bucket, key string) error {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return err
	}
	if err := handle.manager.RemoveObject(ctx, bucket, key); err != nil {
		return fmt.Errorf("notify_object_deleted %s/%s: %w", bucket, key, err)
	}
	return nil
}

// NotifyFolderDeleted absorbs an externally-observed folder delete.
func (c *Core) NotifyFolderDeleted(ctx context.Context, profileID, bucket, prefix string) error {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return err
	}
	if err := handle.manager.RemoveFolder(ctx, bucket, prefix); err != nil {
		return fmt.Errorf("notify_folder_deleted %s/%s: %w", bucket, prefix, err)
	}
	return nil
}

// NotifyObjectRenamed absorbs an externally-observed rename (copy to
// destKey, delete srcKey) into the index, reusing source metadata from
// the index when available.
func (c *Core) NotifyObjectRenamed(ctx context.Context, profileID, bucket, srcKey, destKey string) error {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return err
	}
	if err := handle.manager.CopyObject(ctx, bucket, srcKey, destKey); err != nil {
		return fmt.Errorf("notify_object_renamed copy %s/%s->%s: %w", bucket, srcKey, destKey, err)
	}
	if err := handle.manager.RemoveObject(ctx, bucket, srcKey); err != nil {
		return fmt.Errorf("notify_object_renamed remove source %s/%s: %w", bucket, srcKey, err)
	}
	return nil
}
