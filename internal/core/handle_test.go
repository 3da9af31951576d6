package core

import (
	"context"
	"testing"
	"time"

	"github.com/3leaps/gonimbus/pkg/eventbus"
	"github.com/3leaps/gonimbus/pkg/indexdriver"
	"github.com/3leaps/gonimbus/pkg/indexstore"
	"github.com/stretchr/testify/require"
)

func newTestHandle(t *testing.T) *indexHandle {
	t.Helper()
	store, err := indexstore.OpenInMemory(context.Background(), "profile-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return newIndexHandle("profile-1", store, eventbus.New(), indexdriver.DefaultConfig())
}

func TestStartJob_RejectsSecondJobForSameBucket(t *testing.T) {
	h := newTestHandle(t)

	job, err := h.startJob("bucket1")
	require.NoError(t, err)
	require.NotNil(t, job)

	_, err = h.startJob("bucket1")
	require.Error(t, err)
	require.True(t, IsIndexingAlreadyInProgress(err))

	h.finishJob("bucket1", job)
	_, err = h.startJob("bucket1")
	require.NoError(t, err)
}

func TestStartJob_AllowsDifferentBucketsConcurrently(t *testing.T) {
	h := newTestHandle(t)

	_, err := h.startJob("bucket1")
	require.NoError(t, err)
	_, err = h.startJob("bucket2")
	require.NoError(t, err)
}

func TestCancelJob_NoSuchJob(t *testing.T) {
	h := newTestHandle(t)

	err := h.cancelJob("bucket1", 10*time.Millisecond)
	require.Error(t, err)
	require.True(t, IsNoSuchIndexingJob(err))
}

func TestCancelJob_ReturnsPromptlyOnDone(t *testing.T) {
	h := newTestHandle(t)

	job, err := h.startJob("bucket1")
	require.NoError(t, err)

	go func() {
		<-job.cancel
		h.finishJob("bucket1", job)
	}()

	start := time.Now()
	require.NoError(t, h.cancelJob("bucket1", time.Second))
	require.Less(t, time.Since(start), time.Second)
}

func TestCancelJob_TimesOutAfterGraceIfJobNeverFinishes(t *testing.T) {
	h := newTestHandle(t)

	_, err := h.startJob("bucket1")
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, h.cancelJob("bucket1", 20*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDrainJobs_CancelsEveryActiveJob(t *testing.T) {
	h := newTestHandle(t)

	job1, err := h.startJob("bucket1")
	require.NoError(t, err)
	job2, err := h.startJob("bucket2")
	require.NoError(t, err)

	go func() {
		<-job1.cancel
		h.finishJob("bucket1", job1)
	}()
	go func() {
		<-job2.cancel
		h.finishJob("bucket2", job2)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h.DrainJobs(ctx)
}

func TestActiveJob_RequestCancelIsIdempotent(t *testing.T) {
	job := &activeJob{cancel: make(chan struct{})}
	job.requestCancel()
	require.NotPanics(t, func() { job.requestCancel() })
}
