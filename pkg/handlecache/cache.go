// Package handlecache is the resource cache: a bounded,
// concurrent map of per-profile index handles, evicted by LRU and idle
// time, with a metrics snapshot for dashboards. No teacher file
// implements an LRU cache verbatim; this is modeled on
// internal/cmd/index_build_heartbeat.go's ticker/done-channel goroutine
// lifecycle (the idle-eviction sweep) and pkg/jobregistry/executor.go's
// store-plus-per-entity-directory bookkeeping style (the handle
// lifecycle: acquire, drain active work, close).
package handlecache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Handle is anything the cache can hold a reference to on behalf of a
// profile. Implementations own a database connection pool and the set
// of active indexing tasks for that profile.
type Handle interface {
	// DrainJobs aborts and joins any active indexing tasks owned by the
	// handle. Called before Close on eviction.
	DrainJobs(ctx context.Context)

	// Close releases the handle's underlying storage connection.
	Close() error
}

// Factory constructs a new Handle for profileID on a cache miss.
type Factory func(ctx context.Context, profileID string) (Handle, error)

// Config tunes the cache's bounds.
type Config struct {
	// MaxEntries caps the number of warm handles. Zero means unbounded.
	MaxEntries int

	// IdleTimeout evicts a handle untouched for this long. Zero disables
	// idle sweeping.
	IdleTimeout time.Duration

	// TTL is an optional hard age limit regardless of access, zero disables it.
	TTL time.Duration

	// SweepInterval controls how often the idle sweep runs. Defaults to
	// IdleTimeout/2, floored at one second, when IdleTimeout is set.
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout > 0 && c.SweepInterval <= 0 {
		c.SweepInterval = c.IdleTimeout / 2
		if c.SweepInterval < time.Second {
			c.SweepInterval = time.Second
		}
	}
	return c
}

type entry struct {
	handle     Handle
	createdAt  time.Time
	lastAccess time.Time
}

// Metrics is a point-in-time snapshot of cache operation counters.
type Metrics struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	Insertions int64
}

// HitRate returns hits / (hits + misses), or 0 when there have been no lookups.
func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// Status is the get_cache_status operation's payload.
type Status struct {
	Entries []EntryStatus
	Metrics Metrics
}

// EntryStatus describes one warm handle for diagnostics.
type EntryStatus struct {
	ProfileID  string
	CreatedAt  time.Time
	LastAccess time.Time
}

// Cache is a bounded map of per-profile index handles.
//
// Structural changes (insert, evict, clear) are guarded by mu; handle
// values themselves are expected to be safe for concurrent use once
// acquired, so callers may hold a reference across a long-running
// operation without blocking other profiles.
type Cache struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry
	metrics Metrics

	stopSweep func()
}

// New creates an empty Cache and, if cfg.IdleTimeout is set, starts the
// background idle-eviction sweep.
func New(cfg Config) *Cache {
	cfg = cfg.withDefaults()
	c := &Cache{cfg: cfg, entries: make(map[string]*entry)}
	if cfg.IdleTimeout > 0 {
		c.startSweep()
	}
	return c
}

func (c *Cache) startSweep() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		for {
			select {
			case <-done:
				ticker.Stop()
				return
			case <-ticker.C:
				c.sweepIdle()
			}
		}
	}()

	c.stopSweep = func() {
		close(done)
		<-stopped
	}
}

func (c *Cache) sweepIdle() {
	now := time.Now()

	type stale struct {
		profileID string
		h         Handle
	}
	var toEvict []stale

	c.mu.Lock()
	for profileID, e := range c.entries {
		idleExpired := c.cfg.IdleTimeout > 0 && now.Sub(e.lastAccess) >= c.cfg.IdleTimeout
		ttlExpired := c.cfg.TTL > 0 && now.Sub(e.createdAt) >= c.cfg.TTL
		if idleExpired || ttlExpired {
			toEvict = append(toEvict, stale{profileID: profileID, h: e.handle})
			delete(c.entries, profileID)
			c.metrics.Evictions++
		}
	}
	c.mu.Unlock()

	for _, s := range toEvict {
		drainAndClose(context.Background(), s.h)
	}
}

// GetOrCreate returns the warm handle for profileID, creating it via
// factory on a miss. A miss that triggers creation also enforces
// MaxEntries by evicting the least-recently-used entry first.
func (c *Cache) GetOrCreate(ctx context.Context, profileID string, factory Factory) (Handle, error) {
	c.mu.Lock()
	if e, ok := c.entries[profileID]; ok {
		e.lastAccess = time.Now()
		c.metrics.Hits++
		h := e.handle
		c.mu.Unlock()
		return h, nil
	}
	c.metrics.Misses++
	c.mu.Unlock()

	h, err := factory(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("create index handle for profile %s: %w", profileID, err)
	}

	c.mu.Lock()
	if existing, ok := c.entries[profileID]; ok {
		// Lost the race against a concurrent GetOrCreate; keep the
		// winner's handle and close the one we just built.
		existing.lastAccess = time.Now()
		winner := existing.handle
		c.mu.Unlock()
		drainAndClose(ctx, h)
		return winner, nil
	}

	c.evictForSpaceLocked()
	now := time.Now()
	c.entries[profileID] = &entry{handle: h, createdAt: now, lastAccess: now}
	c.metrics.Insertions++
	c.mu.Unlock()

	return h, nil
}

// evictForSpaceLocked evicts the least-recently-used entries until the
// cache has room for one more, per MaxEntries. Callers must hold mu.
func (c *Cache) evictForSpaceLocked() {
	if c.cfg.MaxEntries <= 0 || len(c.entries) < c.cfg.MaxEntries {
		return
	}

	type lru struct {
		profileID  string
		lastAccess time.Time
	}
	ordered := make([]lru, 0, len(c.entries))
	for profileID, e := range c.entries {
		ordered = append(ordered, lru{profileID: profileID, lastAccess: e.lastAccess})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].lastAccess.Before(ordered[j].lastAccess) })

	need := len(c.entries) - c.cfg.MaxEntries + 1
	for i := 0; i < need && i < len(ordered); i++ {
		profileID := ordered[i].profileID
		h := c.entries[profileID].handle
		delete(c.entries, profileID)
		c.metrics.Evictions++
		// Draining under the lock would block unrelated profiles; drain
		// and close asynchronously in a detached goroutine instead.
		go drainAndClose(context.Background(), h)
	}
}

// Warmup ensures profileID has a warm handle without returning it,
// convenient for cache-control operations invoked ahead of navigation.
func (c *Cache) Warmup(ctx context.Context, profileID string, factory Factory) error {
	_, err := c.GetOrCreate(ctx, profileID, factory)
	return err
}

// Evict drains and closes profileID's handle, if warm, and removes it
// from the cache.
func (c *Cache) Evict(ctx context.Context, profileID string) {
	c.mu.Lock()
	e, ok := c.entries[profileID]
	if ok {
		delete(c.entries, profileID)
		c.metrics.Evictions++
	}
	c.mu.Unlock()

	if ok {
		drainAndClose(ctx, e.handle)
	}
}

// ClearAll drains and closes every warm handle.
func (c *Cache) ClearAll(ctx context.Context) {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*entry)
	c.metrics.Evictions += int64(len(entries))
	c.mu.Unlock()

	for _, e := range entries {
		drainAndClose(ctx, e.handle)
	}
}

// Status returns a snapshot of every warm entry plus cumulative metrics.
func (c *Cache) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Status{Metrics: c.metrics}
	for profileID, e := range c.entries {
		out.Entries = append(out.Entries, EntryStatus{
			ProfileID: profileID, CreatedAt: e.createdAt, LastAccess: e.lastAccess,
		})
	}
	sort.Slice(out.Entries, func(i, j int) bool { return out.Entries[i].ProfileID < out.Entries[j].ProfileID })
	return out
}

// Shutdown stops the background sweep and drains every warm handle. Call
// once during process shutdown.
func (c *Cache) Shutdown(ctx context.Context) {
	if c.stopSweep != nil {
		c.stopSweep()
	}
	c.ClearAll(ctx)
}

func drainAndClose(ctx context.Context, h Handle) {
	if h == nil {
		return
	}
	h.DrainJobs(ctx)
	_ = h.Close()
}
