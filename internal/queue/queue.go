// Package queue implements the priority queue (C4): jobs ordered by
// plan priority, then FIFO within a priority band, with a leased state
// for in-flight work and a dead-letter sink for exhausted retries.
package queue

import (
	"context"
	"time"

	"github.com/scraplink/linkaudit/internal/types"
)

// Stats is a point-in-time snapshot of queue occupancy, used by the
// worker pool's batch-completion check (SPEC_FULL.md §4.7) and by the
// metrics exporter.
type Stats struct {
	Waiting      int
	Leased       int
	Completed    int
	Failed       int
	DeadLettered int
}

// Queue is the capability a worker pool or API ingress needs from C4.
// Both the in-memory and redis-backed implementations satisfy it.
type Queue interface {
	// Enqueue admits a job. If the backend is configured to dedup by job
	// id and a job with the same id is currently waiting, leased, or
	// delayed (retrying), Enqueue is a no-op: it returns (false, nil).
	// Once a job with that id has reached a terminal state (completed or
	// dead-lettered), its id is free again and a later Enqueue with it
	// is admitted normally, returning (true, nil) — dedup scopes to the
	// waiting set, not history (SPEC_FULL.md §4.1).
	Enqueue(ctx context.Context, job *types.Job) (bool, error)

	// Lease blocks until a job is available or ctx is cancelled, then
	// removes it from the waiting set and marks it leased until
	// leaseTimeout elapses without a Complete/Fail call.
	Lease(ctx context.Context, leaseTimeout time.Duration) (*types.Job, error)

	// Complete marks a leased job done and evicts it from the leased set.
	Complete(ctx context.Context, jobID string) error

	// Fail reports a leased job's attempt failed. If attempts remain,
	// the job is re-queued after an exponential backoff delay; once
	// attempts are exhausted it moves to the dead-letter sink and is
	// never automatically revived.
	Fail(ctx context.Context, jobID string, cause error) error

	// Stats reports current queue occupancy.
	Stats(ctx context.Context) (Stats, error)

	// ListByProjectAndKind reports whether any job for the given
	// project and link kind is still waiting, leased, or otherwise
	// unresolved — the predicate behind the analysis_completed event.
	ListByProjectAndKind(ctx context.Context, projectID string, kind types.LinkKind) ([]*types.Job, error)

	// Close releases backend resources (reaper goroutines, connections).
	Close() error
}
