package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/3leaps/gonimbus/pkg/eventbus"
	"github.com/3leaps/gonimbus/pkg/indexdriver"
	"github.com/3leaps/gonimbus/pkg/indexmanager"
	"github.com/3leaps/gonimbus/pkg/indexstore"
)

// activeJob is one (profile, bucket) indexing job's cancellation
// channel and bookkeeping: task handle, cancellation sender, bucket
// name, and started-at time.
type activeJob struct {
	bucket    string
	cancel    chan struct{}
	done      chan struct{}
	startedAt time.Time

	cancelOnce sync.Once
}

func (j *activeJob) requestCancel() {
	j.cancelOnce.Do(func() { close(j.cancel) })
}

// indexHandle owns one profile's index database connection pool and the
// set of active indexing tasks for that profile. It is what pkg/handlecache keeps warm.
type indexHandle struct {
	profileID string
	store     *indexstore.Store
	manager   *indexmanager.Manager
	driver    *indexdriver.Driver

	mu   sync.Mutex
	jobs map[string]*activeJob
}

func newIndexHandle(profileID string, store *indexstore.Store, bus *eventbus.Bus, cfg indexdriver.Config) *indexHandle {
	manager := indexmanager.New(store.DB)
	return &indexHandle{
		profileID: profileID,
		store:     store,
		manager:   manager,
		driver:    indexdriver.New(store, manager, bus, cfg),
		jobs:      make(map[string]*activeJob),
	}
}

// startJob registers a new active job for bucket, failing with
// ErrIndexingAlreadyInProgress if one is already running).
func (h *indexHandle) startJob(bucket string) (*activeJob, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, running := h.jobs[bucket]; running {
		return nil, fmt.Errorf("%w: profile %s bucket %s", ErrIndexingAlreadyInProgress, h.profileID, bucket)
	}

	job := &activeJob{
		bucket:    bucket,
		cancel:    make(chan struct{}),
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	h.jobs[bucket] = job
	return job, nil
}

// finishJob removes bucket's active job entry once its driver run returns.
func (h *indexHandle) finishJob(bucket string, job *activeJob) {
	h.mu.Lock()
	if h.jobs[bucket] == job {
		delete(h.jobs, bucket)
	}
	h.mu.Unlock()
	close(job.done)
}

// cancelJob signals cancellation for bucket's running job and waits up
// to the grace period for it to observe and persist state. Returns
// ErrNoSuchIndexingJob if nothing is running for bucket.
func (h *indexHandle) cancelJob(bucket string, grace time.Duration) error {
	h.mu.Lock()
	job, ok := h.jobs[bucket]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: profile %s bucket %s", ErrNoSuchIndexingJob, h.profileID, bucket)
	}

	job.requestCancel()

	select {
	case <-job.done:
	case <-time.After(grace):
		// Force-abort: the driver's own cooperative check will still stop
		// it shortly; the caller is not made to wait any longer than the
		// grace period regardless.
	}
	return nil
}

// DrainJobs implements handlecache.Handle: it cancels and waits (briefly)
// for every active job owned by this handle, so evicting the handle
// never silently abandons in-flight work.
func (h *indexHandle) DrainJobs(ctx context.Context) {
	h.mu.Lock()
	jobs := make([]*activeJob, 0, len(h.jobs))
	for _, j := range h.jobs {
		jobs = append(jobs, j)
	}
	h.mu.Unlock()

	for _, j := range jobs {
		j.requestCancel()
	}
	for _, j := range jobs {
		select {
		case <-j.done:
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// Close implements handlecache.Handle.
func (h *indexHandle) Close() error {
	return h.store.Close()
}
