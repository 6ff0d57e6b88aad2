package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/scraplink/linkaudit/internal/types"
)

// pqItem is one waiting job in the heap, ordered by plan priority
// (lower value sorts first), then by enqueue time, then by the job's
// own sequence number as a final FIFO tie-break (SPEC_FULL.md §4.1).
type pqItem struct {
	job   *types.Job
	index int
}

type priorityHeap []*pqItem

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	a, b := h[i].job, h[j].job
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.Seq() < b.Seq()
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// leasedEntry tracks an in-flight job so the reaper can requeue it if
// the worker that leased it never calls Complete or Fail.
type leasedEntry struct {
	job      *types.Job
	deadline time.Time
}

// delayedEntry is a failed job waiting out its backoff window before
// becoming eligible to lease again.
type delayedEntry struct {
	job     *types.Job
	readyAt time.Time
}

// jobState records which bucket a deduplicated job id currently lives
// in, so a re-Enqueue of the same id can be rejected as a no-op.
type jobState int

const (
	stateWaiting jobState = iota
	stateLeased
	stateDelayed
	stateCompleted
	stateDeadLettered
)

// MemoryQueue is the default, in-process backend for C4. It holds the
// entire queue in memory, so it does not survive a process restart —
// suitable for the "memory" queue.backend setting.
type MemoryQueue struct {
	mu sync.Mutex

	waiting priorityHeap
	leased  map[string]*leasedEntry
	delayed map[string]*delayedEntry

	completedIDs []string
	failedIDs    []string
	deadLetter   map[string]*types.Job

	index map[string]jobState

	policy       backoffPolicy
	dedup        bool
	retainDone   int
	retainFailed int

	seq uint64

	notify chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
	reaperWG  sync.WaitGroup
}

// MemoryQueueConfig mirrors the config.QueueConfig fields this backend
// actually uses.
type MemoryQueueConfig struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	RetainCompleted int
	RetainFailed    int
	DedupByJobID    bool
	ReapInterval    time.Duration
}

// NewMemoryQueue builds a ready-to-use in-memory queue and starts its
// background reaper, which requeues expired leases and promotes
// delayed (backed-off) jobs once their window elapses.
func NewMemoryQueue(cfg MemoryQueueConfig) *MemoryQueue {
	reapInterval := cfg.ReapInterval
	if reapInterval <= 0 {
		reapInterval = 200 * time.Millisecond
	}
	q := &MemoryQueue{
		leased:       make(map[string]*leasedEntry),
		delayed:      make(map[string]*delayedEntry),
		deadLetter:   make(map[string]*types.Job),
		index:        make(map[string]jobState),
		policy:       backoffPolicy{base: cfg.BackoffBase, maxAttempts: cfg.MaxAttempts},
		dedup:        cfg.DedupByJobID,
		retainDone:   cfg.RetainCompleted,
		retainFailed: cfg.RetainFailed,
		notify:       make(chan struct{}, 1),
		closed:       make(chan struct{}),
	}
	heap.Init(&q.waiting)
	q.reaperWG.Add(1)
	go q.reapLoop(reapInterval)
	return q
}

func (q *MemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Enqueue implements Queue. Dedup only blocks a job id that is
// currently waiting, leased, or delayed; a job id that reached
// completed or dead-lettered is a finished run and is free to be
// enqueued fresh (SPEC_FULL.md §4.1).
func (q *MemoryQueue) Enqueue(ctx context.Context, job *types.Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dedup {
		switch q.index[job.JobID] {
		case stateWaiting, stateLeased, stateDelayed:
			return false, nil
		}
	}
	q.clearTerminalState(job.JobID)

	q.seq++
	job.SetSeq(q.seq)
	q.index[job.JobID] = stateWaiting
	heap.Push(&q.waiting, &pqItem{job: job})
	q.wake()
	return true, nil
}

// clearTerminalState drops any bookkeeping left over from a job id's
// previous completed or dead-lettered run, so that run's retention
// accounting doesn't end up covering the id's new, unrelated run.
func (q *MemoryQueue) clearTerminalState(jobID string) {
	switch q.index[jobID] {
	case stateCompleted:
		q.completedIDs = removeID(q.completedIDs, jobID)
	case stateDeadLettered:
		delete(q.deadLetter, jobID)
		q.failedIDs = removeID(q.failedIDs, jobID)
	}
	delete(q.index, jobID)
}

// removeID returns ids with target's first occurrence removed.
func removeID(ids []string, target string) []string {
	for i, id := range ids {
		if id == target {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// Lease implements Queue. It polls rather than blocking on a
// condition variable so ctx cancellation never leaks a goroutine.
func (q *MemoryQueue) Lease(ctx context.Context, leaseTimeout time.Duration) (*types.Job, error) {
	for {
		q.mu.Lock()
		if q.waiting.Len() > 0 {
			item := heap.Pop(&q.waiting).(*pqItem)
			job := item.job
			job.Attempts++
			q.leased[job.JobID] = &leasedEntry{job: job, deadline: time.Now().Add(leaseTimeout)}
			q.index[job.JobID] = stateLeased
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.closed:
			return nil, types.ErrQueueEmpty
		case <-q.notify:
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Complete implements Queue.
func (q *MemoryQueue) Complete(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.leased[jobID]; !ok {
		return &types.QueueError{Op: "complete", JobID: jobID, Err: types.ErrLeaseExpired}
	}
	delete(q.leased, jobID)
	q.index[jobID] = stateCompleted
	q.completedIDs = append(q.completedIDs, jobID)
	q.trimCompleted()
	return nil
}

// Fail implements Queue: re-queue with backoff if attempts remain,
// otherwise move to the dead-letter sink permanently.
func (q *MemoryQueue) Fail(ctx context.Context, jobID string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.leased[jobID]
	if !ok {
		return &types.QueueError{Op: "fail", JobID: jobID, Err: types.ErrLeaseExpired}
	}
	delete(q.leased, jobID)
	job := entry.job

	if q.policy.exhausted(job.Attempts) {
		q.index[jobID] = stateDeadLettered
		q.deadLetter[jobID] = job
		q.failedIDs = append(q.failedIDs, jobID)
		q.trimFailed()
		return nil
	}

	delay := q.policy.nextDelay(job.Attempts)
	q.index[jobID] = stateDelayed
	q.delayed[jobID] = &delayedEntry{job: job, readyAt: time.Now().Add(delay)}
	return nil
}

// Stats implements Queue.
func (q *MemoryQueue) Stats(ctx context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Waiting:      q.waiting.Len() + len(q.delayed),
		Leased:       len(q.leased),
		Completed:    len(q.completedIDs),
		Failed:       len(q.failedIDs),
		DeadLettered: len(q.deadLetter),
	}, nil
}

// ListByProjectAndKind implements Queue: reports every job for the
// project/kind pair that is still in any unresolved state (waiting,
// delayed, or leased). An empty result is the analysis_completed
// trigger the worker pool checks after every completion.
func (q *MemoryQueue) ListByProjectAndKind(ctx context.Context, projectID string, kind types.LinkKind) ([]*types.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*types.Job
	match := func(j *types.Job) bool { return j.ProjectID == projectID && j.Kind == kind }

	for _, item := range q.waiting {
		if match(item.job) {
			out = append(out, item.job)
		}
	}
	for _, e := range q.leased {
		if match(e.job) {
			out = append(out, e.job)
		}
	}
	for _, e := range q.delayed {
		if match(e.job) {
			out = append(out, e.job)
		}
	}
	return out, nil
}

// Close stops the reaper goroutine.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	q.reaperWG.Wait()
	return nil
}

func (q *MemoryQueue) reapLoop(interval time.Duration) {
	defer q.reaperWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.closed:
			return
		case <-ticker.C:
			q.reapOnce()
		}
	}
}

func (q *MemoryQueue) reapOnce() {
	now := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, e := range q.leased {
		if now.After(e.deadline) {
			delete(q.leased, id)
			// a stalled lease is not a failed attempt: undo Lease's increment
			e.job.Attempts--
			q.seq++
			e.job.SetSeq(q.seq)
			q.index[id] = stateWaiting
			heap.Push(&q.waiting, &pqItem{job: e.job})
		}
	}

	for id, e := range q.delayed {
		if now.After(e.readyAt) || now.Equal(e.readyAt) {
			delete(q.delayed, id)
			q.seq++
			e.job.SetSeq(q.seq)
			q.index[id] = stateWaiting
			heap.Push(&q.waiting, &pqItem{job: e.job})
		}
	}
	if q.waiting.Len() > 0 {
		q.wake()
	}
}

func (q *MemoryQueue) trimCompleted() {
	if q.retainDone <= 0 || len(q.completedIDs) <= q.retainDone {
		return
	}
	drop := len(q.completedIDs) - q.retainDone
	for _, id := range q.completedIDs[:drop] {
		delete(q.index, id)
	}
	q.completedIDs = q.completedIDs[drop:]
}

func (q *MemoryQueue) trimFailed() {
	if q.retainFailed <= 0 || len(q.failedIDs) <= q.retainFailed {
		return
	}
	drop := len(q.failedIDs) - q.retainFailed
	for _, id := range q.failedIDs[:drop] {
		delete(q.deadLetter, id)
		delete(q.index, id)
	}
	q.failedIDs = q.failedIDs[drop:]
}
