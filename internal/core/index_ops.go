package core

import (
	"context"
	"fmt"

	"github.com/3leaps/gonimbus/pkg/indexdriver"
	"github.com/3leaps/gonimbus/pkg/indexmanager"
	"github.com/3leaps/gonimbus/pkg/indexstore"
)

// StartInitialIndex is the start_initial_index operation.
// It registers the job in the handle's active-jobs map before running it,
// so a concurrent CancelIndexing call against the same (profile, bucket)
// can observe and signal it while the scan is in flight. Fails with
// ErrIndexingAlreadyInProgress if a job for this (profile, bucket) is
// already running.
func (c *Core) StartInitialIndex(ctx context.Context, profileID, bucket string, maxRequests, batchSize int) (indexdriver.Result, error) {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return indexdriver.Result{}, err
	}

	job, err := handle.startJob(bucket)
	if err != nil {
		return indexdriver.Result{}, err
	}

	lst, err := c.newLister(ctx, profileID, bucket)
	if err != nil {
		handle.finishJob(bucket, job)
		return indexdriver.Result{}, err
	}

	cfg := c.driverC
	if maxRequests > 0 {
		cfg.MaxInitialRequests = maxRequests
	}
	if batchSize > 0 {
		cfg.BatchSize = batchSize
	}
	driver := indexdriver.New(handle.store, handle.manager, c.bus, cfg)

	result := driver.InitialIndexBucket(ctx, profileID, bucket, lst, job.cancel)
	handle.finishJob(bucket, job)
	return result, nil
}

// CancelIndexing is the cancel_indexing operation. Fails with
// ErrNoSuchIndexingJob if nothing is running for (profileID, bucket).
func (c *Core) CancelIndexing(ctx context.Context, profileID, bucket string) error {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return err
	}
	return handle.cancelJob(bucket, cancelGracePeriod)
}

// GetBucketIndexStats is the get_bucket_index_stats operation.
func (c *Core) GetBucketIndexStats(ctx context.Context, profileID, bucket string) (*indexmanager.BucketIndexStats, error) {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return handle.manager.GetBucketStats(ctx, bucket)
}

// GetPrefixIndexStats is the get_prefix_index_stats operation.
func (c *Core) GetPrefixIndexStats(ctx context.Context, profileID, bucket, prefix string) (*indexmanager.PrefixStats, error) {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return handle.manager.GetPrefixStats(ctx, bucket, prefix)
}

// IsBucketIndexed is the is_bucket_indexed operation.
func (c *Core) IsBucketIndexed(ctx context.Context, profileID, bucket string) (bool, error) {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return false, err
	}
	return handle.manager.IsBucketIndexed(ctx, bucket)
}

// IsBucketIndexComplete is the is_bucket_index_complete operation.
func (c *Core) IsBucketIndexComplete(ctx context.Context, profileID, bucket string) (bool, error) {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return false, err
	}
	return handle.manager.IsBucketIndexComplete(ctx, bucket)
}

// IsPrefixKnown is the is_prefix_known operation.
func (c *Core) IsPrefixKnown(ctx context.Context, profileID, bucket, prefix string) (bool, error) {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return false, err
	}
	return handle.manager.IsPrefixKnown(ctx, bucket, prefix)
}

// IsPrefixDiscoveredOnly is the is_prefix_discovered_only operation.
func (c *Core) IsPrefixDiscoveredOnly(ctx context.Context, profileID, bucket, prefix string) (bool, error) {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return false, err
	}
	return handle.manager.IsPrefixDiscoveredOnly(ctx, bucket, prefix)
}

// SearchObjectsInIndex is the search_objects_in_index operation.
func (c *Core) SearchObjectsInIndex(ctx context.Context, profileID, bucket, query, prefix string, limit int) ([]indexstore.Object, error) {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return handle.manager.SearchObjects(ctx, bucket, query, prefix, limit)
}

// SearchObjectsInIndexWithSizeRange is SearchObjectsInIndex plus an
// optional min/max size constraint (human-readable sizes like "10MB",
// either side may be left empty).
func (c *Core) SearchObjectsInIndexWithSizeRange(ctx context.Context, profileID, bucket, query, prefix, minSize, maxSize string, limit int) ([]indexstore.Object, error) {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return handle.manager.SearchObjectsWithSizeRange(ctx, bucket, query, prefix, minSize, maxSize, limit)
}

// ClearBucketIndex is the clear_bucket_index operation.
func (c *Core) ClearBucketIndex(ctx context.Context, profileID, bucket string) error {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return err
	}
	if err := handle.manager.ClearBucketIndex(ctx, bucket); err != nil {
		return fmt.Errorf("clear bucket index %s/%s: %w", profileID, bucket, err)
	}
	return nil
}

// GetAllBucketIndexes lists summary stats for every bucket a profile has
// ever indexed.
func (c *Core) GetAllBucketIndexes(ctx context.Context, profileID string) ([]indexmanager.BucketIndexStats, error) {
	handle, err := c.handleFor(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return handle.manager.GetAllBucketIndexes(ctx)
}
