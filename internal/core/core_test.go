package core

import (
	"context"
	"testing"
	"time"

	"github.com/3leaps/gonimbus/pkg/eventbus"
	"github.com/3leaps/gonimbus/pkg/indexdriver"
	"github.com/3leaps/gonimbus/pkg/provider"
	"github.com/stretchr/testify/require"
)

func TestStartInitialIndex_SinglePageCompletes(t *testing.T) {
	lst := newFakeLister(
		provider.ObjectSummary{Key: "a.txt", Size: 10},
		provider.ObjectSummary{Key: "folder/b.txt", Size: 20},
	)
	c := newTestCore(t, lst, "profile-1")
	ctx := context.Background()

	result, err := c.StartInitialIndex(ctx, "profile-1", "bucket1", 0, 0)
	require.NoError(t, err)
	require.Equal(t, eventbus.StatusCompleted, result.Status)
	require.Equal(t, int64(2), result.TotalIndexed)

	complete, err := c.IsBucketIndexComplete(ctx, "profile-1", "bucket1")
	require.NoError(t, err)
	require.True(t, complete)
}

func TestStartInitialIndex_RejectsConcurrentJobForSameBucket(t *testing.T) {
	lst := newFakeLister(provider.ObjectSummary{Key: "a.txt", Size: 10})
	c := newTestCore(t, lst, "profile-1")
	ctx := context.Background()

	handle, err := c.handleFor(ctx, "profile-1")
	require.NoError(t, err)

	job, err := handle.startJob("bucket1")
	require.NoError(t, err)
	t.Cleanup(func() { handle.finishJob("bucket1", job) })

	_, err = c.StartInitialIndex(ctx, "profile-1", "bucket1", 0, 0)
	require.Error(t, err)
	require.True(t, IsIndexingAlreadyInProgress(err))
}

func TestCancelIndexing_NoSuchJob(t *testing.T) {
	lst := newFakeLister()
	c := newTestCore(t, lst, "profile-1")
	ctx := context.Background()

	err := c.CancelIndexing(ctx, "profile-1", "bucket1")
	require.Error(t, err)
	require.True(t, IsNoSuchIndexingJob(err))
}

func TestCancelIndexing_SignalsRunningJob(t *testing.T) {
	lst := newFakeLister(provider.ObjectSummary{Key: "a.txt", Size: 10})
	c := newTestCore(t, lst, "profile-1")
	ctx := context.Background()

	handle, err := c.handleFor(ctx, "profile-1")
	require.NoError(t, err)

	job, err := handle.startJob("bucket1")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-job.cancel:
		case <-time.After(time.Second):
			t.Error("cancel signal never arrived")
		}
		handle.finishJob("bucket1", job)
	}()

	require.NoError(t, c.CancelIndexing(ctx, "profile-1", "bucket1"))
	<-done
}

func TestGetCacheStatus_ReportsWarmHandle(t *testing.T) {
	lst := newFakeLister()
	c := newTestCore(t, lst, "profile-1")
	ctx := context.Background()

	require.NoError(t, c.WarmupProfileCache(ctx, "profile-1"))

	status := c.GetCacheStatus()
	require.Len(t, status.IndexManagers.Entries, 1)
	require.Equal(t, "profile-1", status.IndexManagers.Entries[0].ProfileID)
	require.Equal(t, int64(1), status.IndexManagers.Metrics.Insertions)
}

func TestCleanupProfileCache_ClosesHandle(t *testing.T) {
	lst := newFakeLister()
	c := newTestCore(t, lst, "profile-1")
	ctx := context.Background()

	require.NoError(t, c.WarmupProfileCache(ctx, "profile-1"))
	c.CleanupProfileCache(ctx, "profile-1")

	status := c.GetCacheStatus()
	require.Empty(t, status.IndexManagers.Entries)
	require.Equal(t, int64(1), status.IndexManagers.Metrics.Evictions)
}

func TestNew_RequiresDataDirAndResolver(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Options{Resolver: newFakeResolver()})
	require.Error(t, err)

	_, err = New(ctx, Options{DataDir: t.TempDir()})
	require.Error(t, err)
}

func TestStartInitialIndex_UnknownProfile(t *testing.T) {
	lst := newFakeLister()
	c := newTestCore(t, lst, "profile-1")
	ctx := context.Background()

	_, err := c.StartInitialIndex(ctx, "profile-unknown", "bucket1", 0, 0)
	require.Error(t, err)
}

func TestStartInitialIndex_HonorsDriverConfigOverrides(t *testing.T) {
	lst := newFakeLister(provider.ObjectSummary{Key: "a.txt", Size: 10})
	resolver := newFakeResolver()
	resolver.add("profile-1")

	c, err := New(context.Background(), Options{
		DataDir:  t.TempDir(),
		Resolver: resolver,
		ListerFactory: func(ctx context.Context, _, _ string, _ ProfileResolver) (lister, error) {
			return lst, nil
		},
		DriverConfig: indexdriver.Config{MaxInitialRequests: 1, BatchSize: 500},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	result, err := c.StartInitialIndex(context.Background(), "profile-1", "bucket1", 0, 0)
	require.NoError(t, err)
	require.Equal(t, eventbus.StatusCompleted, result.Status)
}
