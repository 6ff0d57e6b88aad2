package queue

import (
	"time"

	"github.com/scraplink/linkaudit/internal/types"
)

// backoffPolicy wraps the base*2^attempts rule shared by both queue
// backends, and the attempts-exhausted dead-letter cutoff decided in
// SPEC_FULL.md §9 (the job's own Attempts counter, not a separate
// per-run sequence number).
type backoffPolicy struct {
	base        time.Duration
	maxAttempts int
}

// nextDelay returns how long a job should wait before becoming
// eligible again after failing for the attemptsSoFar-th time.
func (p backoffPolicy) nextDelay(attemptsSoFar int) time.Duration {
	return types.BackoffDelay(p.base, attemptsSoFar)
}

// exhausted reports whether a job has used up its retry budget and
// must be dead-lettered instead of re-queued.
func (p backoffPolicy) exhausted(attemptsSoFar int) bool {
	return attemptsSoFar >= p.maxAttempts
}
