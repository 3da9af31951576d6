package core

import "errors"

// Sentinel errors for the operation surface's precondition-failed class
//, following pkg/provider/errors.go's ErrXxx + Is* pattern.
var (
	// ErrIndexingAlreadyInProgress is returned by StartInitialIndex when a
	// job for the same (profile, bucket) is already running").
	ErrIndexingAlreadyInProgress = errors.New("indexing already in progress")

	// ErrNoSuchIndexingJob is returned by CancelIndexing when no job is
	// running for the given (profile, bucket).
	ErrNoSuchIndexingJob = errors.New("no such indexing job")

	// ErrUnknownProfile is returned when the profile resolver has no
	// credentials for the given profile id.
	ErrUnknownProfile = errors.New("unknown profile")
)

// IsIndexingAlreadyInProgress reports whether err is ErrIndexingAlreadyInProgress.
func IsIndexingAlreadyInProgress(err error) bool {
	return errors.Is(err, ErrIndexingAlreadyInProgress)
}

// IsNoSuchIndexingJob reports whether err is ErrNoSuchIndexingJob.
func IsNoSuchIndexingJob(err error) bool {
	return errors.Is(err, ErrNoSuchIndexingJob)
}

// IsUnknownProfile reports whether err is ErrUnknownProfile.
func IsUnknownProfile(err error) bool {
	return errors.Is(err, ErrUnknownProfile)
}
