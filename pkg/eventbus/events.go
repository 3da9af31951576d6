// Package eventbus delivers typed, fixed-payload events to subscribers
// asynchronously and at-most-once. In-process consumers subscribe to
// these typed structs directly; pkg/output still serializes the same
// underlying events to JSONL for external consumers like the CLI's
// watch command.
package eventbus

// IndexStatus is the terminal or in-flight state of an indexing job.
type IndexStatus string

const (
	StatusStarting  IndexStatus = "Starting"
	StatusIndexing  IndexStatus = "Indexing"
	StatusCompleted IndexStatus = "Completed"
	StatusPartial   IndexStatus = "Partial"
	StatusCancelled IndexStatus = "Cancelled"
	StatusFailed    IndexStatus = "Failed"
)

// IndexProgress is emitted by the indexing driver as a job advances.
type IndexProgress struct {
	Profile        string
	Bucket         string
	ObjectsIndexed int64
	RequestsMade   int64
	MaxRequests    int64
	IsComplete     bool
	Status         IndexStatus
	Error          string
}

// ObjectCompleted is emitted by an external upload pipeline once an
// object is durably written, so the index can absorb it without a
// re-listing round-trip.
type ObjectCompleted struct {
	Profile     string
	Bucket      string
	Key         string
	Size        int64
	ContentType string
}

// RequestMetric mirrors a metrics-store request record for live
// dashboards that want push updates instead of polling.
type RequestMetric struct {
	Profile       string
	Bucket        string
	Operation     string
	Category      string
	DurationMs    int64
	Bytes         int64
	Success       bool
	ErrorCategory string
}
