// Package indexdriver performs the bounded-cost initial scan of a
// bucket: it streams progress over the event bus, supports cooperative
// cancellation, and always leaves a resumable continuation token
// behind. It runs a sequential page loop with a non-blocking
// cancellation check at the top of every iteration, driving the index
// manager rather than a JSONL writer.
package indexdriver

import (
	"context"
	"fmt"
	"time"

	"github.com/3leaps/gonimbus/pkg/eventbus"
	"github.com/3leaps/gonimbus/pkg/indexmanager"
	"github.com/3leaps/gonimbus/pkg/indexstore"
	"github.com/3leaps/gonimbus/pkg/provider"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Config is the indexing driver's fully enumerated tuning surface.
type Config struct {
	// MaxInitialRequests bounds the number of listing pages per job.
	// Default 20, valid range 1..100.
	MaxInitialRequests int

	// BatchSize is the page size requested from the listing collaborator.
	// Default 1000, valid range 100..1000.
	BatchSize int

	// StaleTTLHours is how long an index is trusted before a caller
	// should consider re-running initial_index_bucket.
	StaleTTLHours int

	// RequestsPerSecond caps how often the driver calls the listing
	// collaborator. Zero means unlimited (the collaborator handles its
	// own throttling), same convention as pkg/crawler.Config.RateLimit.
	RequestsPerSecond float64
}

// DefaultConfig returns the driver's recommended defaults.
func DefaultConfig() Config {
	return Config{MaxInitialRequests: 20, BatchSize: 1000, StaleTTLHours: 24}
}

func (c Config) withDefaults() Config {
	if c.MaxInitialRequests <= 0 {
		c.MaxInitialRequests = 20
	}
	if c.MaxInitialRequests > 100 {
		c.MaxInitialRequests = 100
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.BatchSize < 100 {
		c.BatchSize = 100
	}
	if c.BatchSize > 1000 {
		c.BatchSize = 1000
	}
	if c.StaleTTLHours <= 0 {
		c.StaleTTLHours = 24
	}
	return c
}

// Result is the terminal outcome of an initial indexing job.
type Result struct {
	TotalIndexed      int64
	TotalSize         int64
	IsComplete        bool
	RequestsMade      int
	ContinuationToken string
	LastKey           string
	Status            eventbus.IndexStatus
	Err               error
}

// Lister is the subset of provider.Provider/DelimiterLister the driver
// needs: a flat listing call for the main scan, and a delimiter-mode call
// for the single fallback probe.
type Lister interface {
	List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error)
	ListWithDelimiter(ctx context.Context, opts provider.ListWithDelimiterOptions) (*provider.ListWithDelimiterResult, error)
}

// Driver runs InitialIndexBucket jobs against one profile's index
// manager and database.
type Driver struct {
	db      *indexstore.Store
	manager *indexmanager.Manager
	bus     *eventbus.Bus
	cfg     Config
	limiter *rate.Limiter
}

// New constructs a Driver bound to a profile's store and manager.
func New(store *indexstore.Store, manager *indexmanager.Manager, bus *eventbus.Bus, cfg Config) *Driver {
	cfg = cfg.withDefaults()
	d := &Driver{db: store, manager: manager, bus: bus, cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return d
}

// InitialIndexBucket drives an initial scan of bucket. cancelRx is polled non-blockingly at the top of every page
// loop; a signal there persists the current continuation token and
// aggregates before returning with IsComplete=false.
func (d *Driver) InitialIndexBucket(ctx context.Context, profile, bucket string, lister Lister, cancelRx <-chan struct{}) Result {
	startedAt := time.Now()
	runID := uuid.NewString()

	if err := indexstore.EnsureBucketInfo(ctx, d.db.DB, bucket); err != nil {
		return d.fail(profile, bucket, runID, startedAt, fmt.Errorf("ensure bucket info: %w", err))
	}

	// Read the existing root row, if any, BEFORE writing anything: a
	// prior partial/cancelled run's ContinuationToken/aggregates live
	// here, and UpsertPrefixStatus overwrites every column it's given
	// (it is not a partial/merge update), so whatever we don't carry
	// forward into the write below is lost.
	existingRoot, err := indexstore.GetPrefixStatus(ctx, d.db.DB, bucket, "")
	if err != nil {
		return d.fail(profile, bucket, runID, startedAt, fmt.Errorf("read root prefix status: %w", err))
	}

	now := time.Now().UnixMilli()
	rootWrite := indexstore.PrefixStatus{Bucket: bucket, Prefix: "", LastSyncStartedAt: &now}
	var token, lastKey string
	if existingRoot != nil {
		rootWrite.IsComplete = existingRoot.IsComplete
		rootWrite.ObjectsCount = existingRoot.ObjectsCount
		rootWrite.TotalSize = existingRoot.TotalSize
		rootWrite.ContinuationToken = existingRoot.ContinuationToken
		rootWrite.LastIndexedKey = existingRoot.LastIndexedKey
		if existingRoot.ContinuationToken != nil {
			token = *existingRoot.ContinuationToken
		}
		if existingRoot.LastIndexedKey != nil {
			lastKey = *existingRoot.LastIndexedKey
		}
	}
	if err := indexstore.UpsertPrefixStatus(ctx, d.db.DB, rootWrite); err != nil {
		return d.fail(profile, bucket, runID, startedAt, fmt.Errorf("ensure root prefix status: %w", err))
	}

	if err := indexstore.CreateIndexRun(ctx, d.db.DB, indexstore.IndexRun{
		RunID: runID, Bucket: bucket, StartedAt: now, Status: indexstore.RunStatusRunning,
	}); err != nil {
		return d.fail(profile, bucket, runID, startedAt, fmt.Errorf("create index run: %w", err))
	}

	d.publish(profile, bucket, 0, 0, eventbus.StatusStarting, "")

	var (
		objectsIndexed int64
		totalSize      int64
		requestsMade   int
	)

	for {
		select {
		case <-cancelRx:
			d.persistPartial(ctx, bucket, runID, token, objectsIndexed, totalSize, requestsMade, false)
			d.publish(profile, bucket, objectsIndexed, int64(requestsMade), eventbus.StatusCancelled, "")
			return Result{
				TotalIndexed: objectsIndexed, TotalSize: totalSize, RequestsMade: requestsMade,
				ContinuationToken: token, LastKey: lastKey, Status: eventbus.StatusCancelled,
			}
		default:
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				d.persistPartial(ctx, bucket, runID, token, objectsIndexed, totalSize, requestsMade, false)
				_ = indexstore.FinishIndexRun(ctx, d.db.DB, runID, indexstore.RunStatusFailed, time.Now().UnixMilli(), false)
				d.publish(profile, bucket, objectsIndexed, int64(requestsMade), eventbus.StatusFailed, err.Error())
				return Result{Status: eventbus.StatusFailed, Err: err, TotalIndexed: objectsIndexed, TotalSize: totalSize, RequestsMade: requestsMade}
			}
		}

		page, err := lister.List(ctx, provider.ListOptions{ContinuationToken: token, MaxKeys: d.cfg.BatchSize})
		if err != nil {
			d.persistPartial(ctx, bucket, runID, token, objectsIndexed, totalSize, requestsMade, false)
			d.recordEvent(ctx, runID, indexstore.EventCategoryError, "listing failed", "", "", err.Error())
			_ = indexstore.FinishIndexRun(ctx, d.db.DB, runID, indexstore.RunStatusFailed, time.Now().UnixMilli(), false)
			d.publish(profile, bucket, objectsIndexed, int64(requestsMade), eventbus.StatusFailed, err.Error())
			return Result{Status: eventbus.StatusFailed, Err: err, TotalIndexed: objectsIndexed, TotalSize: totalSize, RequestsMade: requestsMade}
		}

		if err := d.manager.UpdateFromListResponse(ctx, bucket, "", &provider.ListWithDelimiterResult{
			Objects: page.Objects, ContinuationToken: page.ContinuationToken, IsTruncated: page.IsTruncated,
		}); err != nil {
			d.persistPartial(ctx, bucket, runID, token, objectsIndexed, totalSize, requestsMade, false)
			_ = indexstore.FinishIndexRun(ctx, d.db.DB, runID, indexstore.RunStatusFailed, time.Now().UnixMilli(), false)
			d.publish(profile, bucket, objectsIndexed, int64(requestsMade), eventbus.StatusFailed, err.Error())
			return Result{Status: eventbus.StatusFailed, Err: err, TotalIndexed: objectsIndexed, TotalSize: totalSize, RequestsMade: requestsMade}
		}

		for _, o := range page.Objects {
			objectsIndexed++
			totalSize += o.Size
			lastKey = o.Key
		}
		requestsMade++
		token = page.ContinuationToken

		_ = indexstore.UpdateIndexRunProgress(ctx, d.db.DB, runID, int64(requestsMade), objectsIndexed)
		d.publish(profile, bucket, objectsIndexed, int64(requestsMade), eventbus.StatusIndexing, "")

		if !page.IsTruncated {
			return d.finish(ctx, profile, bucket, runID, startedAt, lister, objectsIndexed, totalSize, requestsMade, "", lastKey, true)
		}

		if requestsMade >= d.cfg.MaxInitialRequests {
			d.recordEvent(ctx, runID, indexstore.EventCategoryWarning, "max_initial_requests reached before full scan completed", "", "", "")
			return d.finish(ctx, profile, bucket, runID, startedAt, lister, objectsIndexed, totalSize, requestsMade, token, lastKey, false)
		}
	}
}

// finish implements step 3-4 of the algorithm: an optional one-shot
// delimiter probe when the scan ran out of budget, then the terminal
// bucket/prefix/run bookkeeping and event.
func (d *Driver) finish(ctx context.Context, profile, bucket, runID string, startedAt time.Time, lister Lister,
	objectsIndexed, totalSize int64, requestsMade int, token, lastKey string, isComplete bool) Result {

	if !isComplete {
		d.probeTopLevelFolders(ctx, bucket, lister)
	}

	var continuationToken *string
	if token != "" {
		continuationToken = &token
	}
	var lastIndexedKey *string
	if lastKey != "" {
		lastIndexedKey = &lastKey
	}
	completedAt := time.Now().UnixMilli()

	// The persisted root aggregates are recomputed recursively over
	// every Object record, not the run-local counters above (which only
	// count this run's pages and would under-report on a resumed run).
	rootCount, rootSize, err := indexstore.CalculatePrefixStats(ctx, d.db.DB, bucket, "")
	if err != nil {
		rootCount, rootSize = objectsIndexed, totalSize
	}

	_ = indexstore.UpsertPrefixStatus(ctx, d.db.DB, indexstore.PrefixStatus{
		Bucket: bucket, Prefix: "", IsComplete: isComplete,
		ObjectsCount: rootCount, TotalSize: rootSize,
		ContinuationToken: continuationToken, LastIndexedKey: lastIndexedKey,
		LastSyncCompletedAt: &completedAt,
	})

	var lastFullScanAt *int64
	if isComplete {
		lastFullScanAt = &completedAt
	}
	_ = indexstore.SetBucketIndexCompleted(ctx, d.db.DB, bucket, isComplete, lastFullScanAt)
	_ = indexstore.IncrementBucketIndexRequests(ctx, d.db.DB, bucket, int64(requestsMade))

	status := eventbus.StatusCompleted
	runStatus := indexstore.RunStatusSuccess
	if !isComplete {
		status = eventbus.StatusPartial
		runStatus = indexstore.RunStatusPartial
	}
	_ = indexstore.FinishIndexRun(ctx, d.db.DB, runID, runStatus, completedAt, isComplete)

	d.publish(profile, bucket, objectsIndexed, int64(requestsMade), status, "")

	return Result{
		TotalIndexed: objectsIndexed, TotalSize: totalSize, IsComplete: isComplete,
		RequestsMade: requestsMade, ContinuationToken: token, LastKey: lastKey, Status: status,
	}
}

// probeTopLevelFolders performs the single additional delimiter-mode
// listing at the root, creating discovered-only
// PrefixStatus rows for first-level folders so the UI has a navigable
// top level even when the bucket is too large to flat-scan.
func (d *Driver) probeTopLevelFolders(ctx context.Context, bucket string, lister Lister) {
	result, err := lister.ListWithDelimiter(ctx, provider.ListWithDelimiterOptions{Prefix: "", Delimiter: "/", MaxKeys: 1000})
	if err != nil {
		return
	}
	for _, cp := range result.CommonPrefixes {
		existing, err := indexstore.GetPrefixStatus(ctx, d.db.DB, bucket, cp)
		if err != nil || existing != nil {
			continue
		}
		_ = indexstore.UpsertPrefixStatus(ctx, d.db.DB, indexstore.PrefixStatus{Bucket: bucket, Prefix: cp})
	}
}

func (d *Driver) persistPartial(ctx context.Context, bucket, runID, token string, objectsIndexed, totalSize int64, requestsMade int, isComplete bool) {
	var continuationToken *string
	if token != "" {
		continuationToken = &token
	}
	// Recompute recursively, same rationale as finish().
	rootCount, rootSize, err := indexstore.CalculatePrefixStats(ctx, d.db.DB, bucket, "")
	if err != nil {
		rootCount, rootSize = objectsIndexed, totalSize
	}
	_ = indexstore.UpsertPrefixStatus(ctx, d.db.DB, indexstore.PrefixStatus{
		Bucket: bucket, Prefix: "", IsComplete: isComplete,
		ObjectsCount: rootCount, TotalSize: rootSize, ContinuationToken: continuationToken,
	})
	_ = indexstore.IncrementBucketIndexRequests(ctx, d.db.DB, bucket, int64(requestsMade))
	_ = indexstore.FinishIndexRun(ctx, d.db.DB, runID, indexstore.RunStatusCancelled, time.Now().UnixMilli(), isComplete)
}

func (d *Driver) fail(profile, bucket, runID string, startedAt time.Time, err error) Result {
	d.publish(profile, bucket, 0, 0, eventbus.StatusFailed, err.Error())
	return Result{Status: eventbus.StatusFailed, Err: err}
}

func (d *Driver) publish(profile, bucket string, objectsIndexed, requestsMade int64, status eventbus.IndexStatus, errMsg string) {
	if d.bus == nil {
		return
	}
	d.bus.PublishIndexProgress(eventbus.IndexProgress{
		Profile: profile, Bucket: bucket,
		ObjectsIndexed: objectsIndexed, RequestsMade: requestsMade, MaxRequests: int64(d.cfg.MaxInitialRequests),
		IsComplete: status == eventbus.StatusCompleted, Status: status, Error: errMsg,
	})
}

func (d *Driver) recordEvent(ctx context.Context, runID, category, detail, key, prefix, errorCode string) {
	_ = indexstore.RecordRunEvent(ctx, d.db.DB, indexstore.RunEvent{
		EventID: uuid.NewString(), RunID: runID, OccurredAt: time.Now().UnixMilli(),
		EventType: "driver", EventCategory: category, Detail: detail, Key: key, Prefix: prefix, ErrorCode: errorCode,
	})
}
