// Package core is an explicitly constructed context: one Core struct
// wiring the storage engine, index manager, indexing driver, resource
// cache, event bus, and metrics store together, rather than reaching
// through module-level singletons. Its methods are the public
// operation surface, invoked either directly (tests, the cobra CLI) or
// through internal/server's HTTP handlers.
package core

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/3leaps/gonimbus/pkg/eventbus"
	"github.com/3leaps/gonimbus/pkg/handlecache"
	"github.com/3leaps/gonimbus/pkg/indexdriver"
	"github.com/3leaps/gonimbus/pkg/indexstore"
	"github.com/3leaps/gonimbus/pkg/metricsstore"
)

// cancelGracePeriod is how long CancelIndexing waits for a running job
// to observe the cancellation signal and persist state before
// returning.
const cancelGracePeriod = 100 * time.Millisecond

var _ handlecache.Handle = (*indexHandle)(nil)

// Options configures a Core.
type Options struct {
	// DataDir is the root directory holding per-profile index databases
	// and the shared metrics database.
	DataDir string

	// Resolver supplies S3 credentials for a profile id.
	Resolver ProfileResolver

	// CacheConfig tunes the per-profile index-handle pool.
	CacheConfig handlecache.Config

	// DriverConfig tunes the initial-indexing driver.
	DriverConfig indexdriver.Config

	// Pricing feeds metricsstore.Cost.
	Pricing metricsstore.Pricing

	// ListerFactory overrides how the core constructs its S3 listing
	// collaborator. Nil uses newS3Lister (the real AWS SDK-backed
	// provider); tests substitute a fake to avoid touching the network.
	ListerFactory ListerFactory
}

// Core is the long-lived, explicitly constructed application context:
// init -> serve requests -> shutdown (drain jobs, flush storage).
type Core struct {
	dataDir       string
	resolver      ProfileResolver
	bus           *eventbus.Bus
	metrics       *metricsstore.Store
	cache         *handlecache.Cache
	driverC       indexdriver.Config
	pricing       metricsstore.Pricing
	listerFactory ListerFactory
}

// New constructs a Core: opens the shared metrics database and the
// handle cache, but opens no per-profile index database until the first
// operation touches that profile (handlecache.GetOrCreate is lazy).
func New(ctx context.Context, opts Options) (*Core, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("profile resolver is required")
	}

	metrics, err := metricsstore.Open(ctx, opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open metrics store: %w", err)
	}

	listerFactory := opts.ListerFactory
	if listerFactory == nil {
		listerFactory = newS3Lister
	}

	c := &Core{
		dataDir:       opts.DataDir,
		resolver:      opts.Resolver,
		bus:           eventbus.New(),
		metrics:       metrics,
		driverC:       opts.DriverConfig,
		pricing:       opts.Pricing,
		listerFactory: listerFactory,
	}
	c.cache = handlecache.New(opts.CacheConfig)
	return c, nil
}

// Bus exposes the event bus for subscribers (the cobra CLI's
// `index watch` progress printer).
func (c *Core) Bus() *eventbus.Bus { return c.bus }

// Metrics exposes the metrics store's read surface.
func (c *Core) Metrics() *metricsstore.Store { return c.metrics }

// Pricing returns the configured rate card.
func (c *Core) Pricing() metricsstore.Pricing { return c.pricing }

// Shutdown drains every warm index handle's active jobs, closes every
// per-profile database, and flushes the metrics store.
func (c *Core) Shutdown(ctx context.Context) error {
	c.cache.Shutdown(ctx)
	return c.metrics.Close()
}

// handleFor returns (creating if needed) the warm index handle for profileID.
func (c *Core) handleFor(ctx context.Context, profileID string) (*indexHandle, error) {
	h, err := c.cache.GetOrCreate(ctx, profileID, func(ctx context.Context, profileID string) (handlecache.Handle, error) {
		store, err := indexstore.Open(ctx, c.dataDir, profileID)
		if err != nil {
			return nil, err
		}
		return newIndexHandle(profileID, store, c.bus, c.driverC), nil
	})
	if err != nil {
		return nil, err
	}
	return h.(*indexHandle), nil
}

// indexDBPath is exposed for diagnostics (get_cache_status).
func (c *Core) indexDBPath(profileID string) string {
	return filepath.Join(c.dataDir, indexstore.IndexDBFileName(profileID))
}

// CacheStatus is the get_cache_status operation's payload.
type CacheStatus struct {
	IndexManagers handlecache.Status
}

// GetCacheStatus reports the resource cache's current contents and
// cumulative hit/miss/eviction/insertion metrics.
func (c *Core) GetCacheStatus() CacheStatus {
	return CacheStatus{IndexManagers: c.cache.Status()}
}

// WarmupProfileCache eagerly opens profileID's index handle.
func (c *Core) WarmupProfileCache(ctx context.Context, profileID string) error {
	_, err := c.handleFor(ctx, profileID)
	return err
}

// CleanupProfileCache evicts profileID's index handle, draining its
// active jobs and closing its database first.
func (c *Core) CleanupProfileCache(ctx context.Context, profileID string) {
	c.cache.Evict(ctx, profileID)
}

// ClearAllCaches evicts every warm index handle.
func (c *Core) ClearAllCaches(ctx context.Context) {
	c.cache.ClearAll(ctx)
}
