// Package batch describes the per-task outcomes of one sync batch.
package batch

import "time"

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusRetry ItemStatus = "retry"
	StatusDead  ItemStatus = "dead"
)

// Result is the outcome of processing one task in a batch.
type Result struct {
	id      string
	status  ItemStatus
	err     error
	retryAt time.Time
}

// NewOK creates a successful result.
func NewOK(id string) Result { return Result{id: id, status: StatusOK} }

// NewRetry creates a failed result rescheduled for retryAt.
func NewRetry(id string, err error, retryAt time.Time) Result {
	return Result{id: id, status: StatusRetry, err: err, retryAt: retryAt}
}

// NewDead creates a failed result moved to the dead-letter store.
func NewDead(id string, err error) Result { return Result{id: id, status: StatusDead, err: err} }

// ID returns the task identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// RetryAt returns when a retried task becomes eligible again.
func (r Result) RetryAt() time.Time { return r.retryAt }

// Summary counts outcomes by status.
type Summary struct {
	OK      int `json:"ok"`
	Retried int `json:"retried"`
	Dead    int `json:"dead"`
}

// Summarize counts results by status.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.status {
		case StatusOK:
			s.OK++
		case StatusRetry:
			s.Retried++
		case StatusDead:
			s.Dead++
		}
	}
	return s
}
