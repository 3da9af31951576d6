package handlecache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	drained int32
	closed  int32
}

func (h *fakeHandle) DrainJobs(_ context.Context) { atomic.AddInt32(&h.drained, 1) }
func (h *fakeHandle) Close() error                { atomic.AddInt32(&h.closed, 1); return nil }

func countingFactory() (Factory, *int32) {
	var calls int32
	return func(_ context.Context, _ string) (Handle, error) {
		atomic.AddInt32(&calls, 1)
		return &fakeHandle{}, nil
	}, &calls
}

func TestGetOrCreate_HitsAndMisses(t *testing.T) {
	c := New(Config{})
	factory, calls := countingFactory()

	h1, err := c.GetOrCreate(context.Background(), "p1", factory)
	require.NoError(t, err)
	require.NotNil(t, h1)

	h2, err := c.GetOrCreate(context.Background(), "p1", factory)
	require.NoError(t, err)
	require.Same(t, h1, h2)
	require.Equal(t, int32(1), atomic.LoadInt32(calls))

	status := c.Status()
	require.Equal(t, int64(1), status.Metrics.Misses)
	require.Equal(t, int64(1), status.Metrics.Hits)
	require.Equal(t, int64(1), status.Metrics.Insertions)
	require.InDelta(t, 0.5, status.Metrics.HitRate(), 1e-9)
}

func TestGetOrCreate_EnforcesMaxEntriesByLRU(t *testing.T) {
	c := New(Config{MaxEntries: 2})
	factory, _ := countingFactory()

	_, err := c.GetOrCreate(context.Background(), "p1", factory)
	require.NoError(t, err)
	_, err = c.GetOrCreate(context.Background(), "p2", factory)
	require.NoError(t, err)

	// Touch p1 so it is the most-recently-used of the two, then insert a
	// third profile: p2 (least recently used) must be evicted, not p1.
	_, err = c.GetOrCreate(context.Background(), "p1", factory)
	require.NoError(t, err)
	_, err = c.GetOrCreate(context.Background(), "p3", factory)
	require.NoError(t, err)

	status := c.Status()
	require.Len(t, status.Entries, 2)
	ids := map[string]bool{}
	for _, e := range status.Entries {
		ids[e.ProfileID] = true
	}
	require.True(t, ids["p1"])
	require.True(t, ids["p3"])
	require.False(t, ids["p2"])
}

func TestGetOrCreate_ConcurrentCreatesCollapseToOneWinner(t *testing.T) {
	c := New(Config{})
	var created int32
	factory := func(_ context.Context, _ string) (Handle, error) {
		atomic.AddInt32(&created, 1)
		time.Sleep(5 * time.Millisecond)
		return &fakeHandle{}, nil
	}

	var wg sync.WaitGroup
	results := make([]Handle, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.GetOrCreate(context.Background(), "p1", factory)
			require.NoError(t, err)
			results[i] = h
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		require.Same(t, results[0], results[i])
	}
}

func TestEvict_DrainsAndClosesBeforeRemoving(t *testing.T) {
	c := New(Config{})
	var h *fakeHandle
	factory := func(_ context.Context, _ string) (Handle, error) {
		h = &fakeHandle{}
		return h, nil
	}

	_, err := c.GetOrCreate(context.Background(), "p1", factory)
	require.NoError(t, err)

	c.Evict(context.Background(), "p1")

	require.Equal(t, int32(1), atomic.LoadInt32(&h.drained))
	require.Equal(t, int32(1), atomic.LoadInt32(&h.closed))

	status := c.Status()
	require.Empty(t, status.Entries)
	require.Equal(t, int64(1), status.Metrics.Evictions)
}

func TestEvict_UnknownProfileIsANoop(t *testing.T) {
	c := New(Config{})
	c.Evict(context.Background(), "does-not-exist")
	require.Equal(t, int64(0), c.Status().Metrics.Evictions)
}

func TestClearAll_DrainsEveryHandle(t *testing.T) {
	c := New(Config{})
	handles := make([]*fakeHandle, 0, 3)
	for i := 0; i < 3; i++ {
		profileID := fmt.Sprintf("p%d", i)
		_, err := c.GetOrCreate(context.Background(), profileID, func(_ context.Context, _ string) (Handle, error) {
			h := &fakeHandle{}
			handles = append(handles, h)
			return h, nil
		})
		require.NoError(t, err)
	}

	c.ClearAll(context.Background())

	require.Empty(t, c.Status().Entries)
	for _, h := range handles {
		require.Equal(t, int32(1), atomic.LoadInt32(&h.drained))
		require.Equal(t, int32(1), atomic.LoadInt32(&h.closed))
	}
}

func TestSweepIdle_EvictsEntriesPastIdleTimeout(t *testing.T) {
	c := New(Config{IdleTimeout: 20 * time.Millisecond, SweepInterval: 5 * time.Millisecond})
	defer c.Shutdown(context.Background())

	var h fakeHandle
	_, err := c.GetOrCreate(context.Background(), "p1", func(_ context.Context, _ string) (Handle, error) {
		return &h, nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(c.Status().Entries) == 0
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, int32(1), atomic.LoadInt32(&h.drained))
	require.Equal(t, int32(1), atomic.LoadInt32(&h.closed))
}

func TestShutdown_StopsSweepAndClearsEntries(t *testing.T) {
	c := New(Config{IdleTimeout: time.Hour})
	_, err := c.GetOrCreate(context.Background(), "p1", func(_ context.Context, _ string) (Handle, error) {
		return &fakeHandle{}, nil
	})
	require.NoError(t, err)

	c.Shutdown(context.Background())
	require.Empty(t, c.Status().Entries)
}
