package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scraplink/linkaudit/internal/types"
)

// RedisQueue is the durable backend for C4 (queue.backend: "redis").
// Priority bands are modeled as separate Redis lists so BLPOP's
// multi-key, first-non-empty-wins semantics give FIFO-within-priority
// for free, the way a dispatcher would pick from a stack of inboxes
// ordered by importance. Leases and backoff windows are tracked in
// sorted sets scored by their deadline, reaped by a background
// poller — the same durable-row-plus-poller shape as a queue that
// treats redis as a hint and the stored row as the fallback source of
// truth, generalized here to redis itself being the row.
type RedisQueue struct {
	rdb    *redis.Client
	logger *slog.Logger

	policy       backoffPolicy
	dedup        bool
	retainDone   int
	retainFailed int

	priorities []types.Priority

	mu        sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	pollWG    sync.WaitGroup
}

const (
	keyPrefix        = "linkaudit:queue:"
	keyLeased        = keyPrefix + "leased"
	keyLeaseDeadline = keyPrefix + "lease_deadlines"
	keyDelayedSet    = keyPrefix + "delayed"
	keyDeadLetter    = keyPrefix + "deadletter"
	keyIndex         = keyPrefix + "index"
	keyCompletedCtr  = keyPrefix + "stats:completed"
	keyFailedCtr     = keyPrefix + "stats:failed"
	keyCompletedIDs  = keyPrefix + "stats:completed_ids"
	keyFailedIDs     = keyPrefix + "stats:failed_ids"
)

func waitingKey(p types.Priority) string {
	return fmt.Sprintf("%swaiting:%d", keyPrefix, p)
}

func projectIndexKey(projectID string, kind types.LinkKind) string {
	return fmt.Sprintf("%sby_project:%s:%s", keyPrefix, projectID, kind)
}

// RedisQueueConfig mirrors the subset of config.QueueConfig and
// config.RedisConfig this backend needs.
type RedisQueueConfig struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	RetainCompleted int
	RetainFailed    int
	DedupByJobID    bool
	PollInterval    time.Duration
}

// NewRedisQueue wires a durable queue on top of an existing redis
// client and starts its lease/backoff poller.
func NewRedisQueue(rdb *redis.Client, cfg RedisQueueConfig, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	q := &RedisQueue{
		rdb:          rdb,
		logger:       logger.With("component", "queue.redis"),
		policy:       backoffPolicy{base: cfg.BackoffBase, maxAttempts: cfg.MaxAttempts},
		dedup:        cfg.DedupByJobID,
		retainDone:   cfg.RetainCompleted,
		retainFailed: cfg.RetainFailed,
		priorities: []types.Priority{
			types.PriorityEnterprise, types.PriorityPro, types.PriorityStarter, types.PriorityFree,
		},
		closed: make(chan struct{}),
	}
	q.pollWG.Add(1)
	go q.pollLoop(pollInterval)
	return q
}

func encodeJob(job *types.Job) ([]byte, error) {
	return json.Marshal(job)
}

func decodeJob(raw []byte) (*types.Job, error) {
	var job types.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Enqueue implements Queue. Dedup only blocks a job id whose index
// entry is "waiting", "leased", or "delayed"; "completed" and
// "dead_letter" are terminal states that free the id for a fresh run
// (SPEC_FULL.md §4.1).
func (q *RedisQueue) Enqueue(ctx context.Context, job *types.Job) (bool, error) {
	if q.dedup {
		state, err := q.rdb.HGet(ctx, keyIndex, job.JobID).Result()
		if err != nil && err != redis.Nil {
			return false, &types.QueueError{Op: "enqueue", JobID: job.JobID, Err: err}
		}
		switch state {
		case "waiting", "leased", "delayed":
			return false, nil
		}
	}

	data, err := encodeJob(job)
	if err != nil {
		return false, &types.QueueError{Op: "enqueue", JobID: job.JobID, Err: err}
	}

	pipe := q.rdb.TxPipeline()
	pipe.RPush(ctx, waitingKey(job.Priority), data)
	pipe.HSet(ctx, keyIndex, job.JobID, "waiting")
	pipe.SAdd(ctx, projectIndexKey(job.ProjectID, job.Kind), job.JobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, &types.QueueError{Op: "enqueue", JobID: job.JobID, Err: err}
	}
	return true, nil
}

// Lease implements Queue via a blocking multi-key pop across the
// priority bands, highest priority first.
func (q *RedisQueue) Lease(ctx context.Context, leaseTimeout time.Duration) (*types.Job, error) {
	keys := make([]string, 0, len(q.priorities))
	for _, p := range q.priorities {
		keys = append(keys, waitingKey(p))
	}

	for {
		res, err := q.rdb.BLPop(ctx, time.Second, keys...).Result()
		if err != nil {
			if err == redis.Nil {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-q.closed:
					return nil, types.ErrQueueEmpty
				default:
					continue
				}
			}
			return nil, &types.QueueError{Op: "lease", Err: err}
		}
		if len(res) != 2 {
			continue
		}
		job, err := decodeJob([]byte(res[1]))
		if err != nil {
			q.logger.Error("decode leased job failed", "error", err)
			continue
		}
		job.Attempts++

		data, _ := encodeJob(job)
		deadline := time.Now().Add(leaseTimeout)
		pipe := q.rdb.TxPipeline()
		pipe.HSet(ctx, keyLeased, job.JobID, data)
		pipe.ZAdd(ctx, keyLeaseDeadline, redis.Z{Score: float64(deadline.Unix()), Member: job.JobID})
		pipe.HSet(ctx, keyIndex, job.JobID, "leased")
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, &types.QueueError{Op: "lease", JobID: job.JobID, Err: err}
		}
		return job, nil
	}
}

// Complete implements Queue.
func (q *RedisQueue) Complete(ctx context.Context, jobID string) error {
	raw, err := q.rdb.HGet(ctx, keyLeased, jobID).Bytes()
	if err != nil {
		return &types.QueueError{Op: "complete", JobID: jobID, Err: types.ErrLeaseExpired}
	}
	job, err := decodeJob(raw)
	if err != nil {
		return &types.QueueError{Op: "complete", JobID: jobID, Err: err}
	}

	pipe := q.rdb.TxPipeline()
	pipe.HDel(ctx, keyLeased, jobID)
	pipe.ZRem(ctx, keyLeaseDeadline, jobID)
	pipe.HSet(ctx, keyIndex, jobID, "completed")
	pipe.SRem(ctx, projectIndexKey(job.ProjectID, job.Kind), jobID)
	pipe.Incr(ctx, keyCompletedCtr)
	pipe.RPush(ctx, keyCompletedIDs, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return &types.QueueError{Op: "complete", JobID: jobID, Err: err}
	}
	q.trimIndexTail(ctx, keyCompletedIDs, q.retainDone)
	return nil
}

// Fail implements Queue.
func (q *RedisQueue) Fail(ctx context.Context, jobID string, cause error) error {
	raw, err := q.rdb.HGet(ctx, keyLeased, jobID).Bytes()
	if err != nil {
		return &types.QueueError{Op: "fail", JobID: jobID, Err: types.ErrLeaseExpired}
	}
	job, err := decodeJob(raw)
	if err != nil {
		return &types.QueueError{Op: "fail", JobID: jobID, Err: err}
	}

	pipe := q.rdb.TxPipeline()
	pipe.HDel(ctx, keyLeased, jobID)
	pipe.ZRem(ctx, keyLeaseDeadline, jobID)

	if q.policy.exhausted(job.Attempts) {
		data, _ := encodeJob(job)
		pipe.HSet(ctx, keyDeadLetter, jobID, data)
		pipe.HSet(ctx, keyIndex, jobID, "dead_letter")
		pipe.SRem(ctx, projectIndexKey(job.ProjectID, job.Kind), jobID)
		pipe.Incr(ctx, keyFailedCtr)
		pipe.RPush(ctx, keyFailedIDs, jobID)
		if _, err := pipe.Exec(ctx); err != nil {
			return &types.QueueError{Op: "fail", JobID: jobID, Err: err}
		}
		q.trimDeadLetterTail(ctx)
		return nil
	}

	data, err := encodeJob(job)
	if err != nil {
		return &types.QueueError{Op: "fail", JobID: jobID, Err: err}
	}
	readyAt := time.Now().Add(q.policy.nextDelay(job.Attempts))
	pipe.ZAdd(ctx, keyDelayedSet, redis.Z{Score: float64(readyAt.Unix()), Member: string(data)})
	pipe.HSet(ctx, keyIndex, jobID, "delayed")
	if _, err := pipe.Exec(ctx); err != nil {
		return &types.QueueError{Op: "fail", JobID: jobID, Err: err}
	}
	return nil
}

// Stats implements Queue.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	for _, p := range q.priorities {
		n, err := q.rdb.LLen(ctx, waitingKey(p)).Result()
		if err != nil {
			return stats, &types.QueueError{Op: "stats", Err: err}
		}
		stats.Waiting += int(n)
	}
	delayedN, err := q.rdb.ZCard(ctx, keyDelayedSet).Result()
	if err != nil {
		return stats, &types.QueueError{Op: "stats", Err: err}
	}
	stats.Waiting += int(delayedN)

	leasedN, err := q.rdb.HLen(ctx, keyLeased).Result()
	if err != nil {
		return stats, &types.QueueError{Op: "stats", Err: err}
	}
	stats.Leased = int(leasedN)

	completed, _ := q.rdb.Get(ctx, keyCompletedCtr).Int()
	stats.Completed = completed
	failed, _ := q.rdb.Get(ctx, keyFailedCtr).Int()
	stats.Failed = failed

	deadN, err := q.rdb.HLen(ctx, keyDeadLetter).Result()
	if err != nil {
		return stats, &types.QueueError{Op: "stats", Err: err}
	}
	stats.DeadLettered = int(deadN)
	return stats, nil
}

// trimIndexTail keeps at most retain ids remembered in idsKey,
// forgetting older ones from keyIndex so those ids stop being
// considered in-flight by Enqueue's dedup check — the redis analogue
// of MemoryQueue's trimCompleted/trimFailed (SPEC_FULL.md §4.1:
// "Completed and failed tails are trimmed").
func (q *RedisQueue) trimIndexTail(ctx context.Context, idsKey string, retain int) {
	if retain <= 0 {
		return
	}
	n, err := q.rdb.LLen(ctx, idsKey).Result()
	if err != nil || n <= int64(retain) {
		return
	}
	dropped, err := q.rdb.LPopCount(ctx, idsKey, int(n-int64(retain))).Result()
	if err != nil {
		return
	}
	for _, id := range dropped {
		q.rdb.HDel(ctx, keyIndex, id)
	}
}

// trimDeadLetterTail is trimIndexTail for the dead-letter tail, plus
// the dead-lettered job record itself, which keyIndex alone doesn't
// cover.
func (q *RedisQueue) trimDeadLetterTail(ctx context.Context) {
	if q.retainFailed <= 0 {
		return
	}
	n, err := q.rdb.LLen(ctx, keyFailedIDs).Result()
	if err != nil || n <= int64(q.retainFailed) {
		return
	}
	dropped, err := q.rdb.LPopCount(ctx, keyFailedIDs, int(n-int64(q.retainFailed))).Result()
	if err != nil {
		return
	}
	for _, id := range dropped {
		q.rdb.HDel(ctx, keyIndex, id)
		q.rdb.HDel(ctx, keyDeadLetter, id)
	}
}

// ListByProjectAndKind implements Queue via the secondary per-project
// index set maintained alongside Enqueue/Complete/Fail: every id in it
// is unresolved. Leased jobs are returned in full; waiting and delayed
// jobs live in lists and sorted sets that are not addressable by id,
// so they are returned carrying only their id, project and kind.
func (q *RedisQueue) ListByProjectAndKind(ctx context.Context, projectID string, kind types.LinkKind) ([]*types.Job, error) {
	ids, err := q.rdb.SMembers(ctx, projectIndexKey(projectID, kind)).Result()
	if err != nil {
		return nil, &types.QueueError{Op: "list_by_project", Err: err}
	}
	sort.Strings(ids)

	out := make([]*types.Job, 0, len(ids))
	for _, id := range ids {
		if raw, err := q.rdb.HGet(ctx, keyLeased, id).Bytes(); err == nil {
			if job, err := decodeJob(raw); err == nil {
				out = append(out, job)
				continue
			}
		}
		out = append(out, &types.Job{JobID: id, ProjectID: projectID, Kind: kind})
	}
	return out, nil
}

// Close stops the background poller. The underlying redis client is
// owned by the caller and is not closed here.
func (q *RedisQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	q.pollWG.Wait()
	return nil
}

func (q *RedisQueue) pollLoop(interval time.Duration) {
	defer q.pollWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.closed:
			return
		case <-ticker.C:
			q.reapExpiredLeases(ctx)
			q.promoteDelayed(ctx)
		}
	}
}

func (q *RedisQueue) reapExpiredLeases(ctx context.Context) {
	now := float64(time.Now().Unix())
	ids, err := q.rdb.ZRangeByScore(ctx, keyLeaseDeadline, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		raw, err := q.rdb.HGet(ctx, keyLeased, id).Bytes()
		if err != nil {
			q.rdb.ZRem(ctx, keyLeaseDeadline, id)
			continue
		}
		job, err := decodeJob(raw)
		if err != nil {
			q.rdb.ZRem(ctx, keyLeaseDeadline, id)
			continue
		}

		// a stalled lease is not a failed attempt: undo Lease's increment
		job.Attempts--
		data, _ := encodeJob(job)

		pipe := q.rdb.TxPipeline()
		pipe.HDel(ctx, keyLeased, id)
		pipe.ZRem(ctx, keyLeaseDeadline, id)
		pipe.RPush(ctx, waitingKey(job.Priority), data)
		pipe.HSet(ctx, keyIndex, id, "waiting")
		if _, err := pipe.Exec(ctx); err != nil {
			q.logger.Error("reap expired lease failed", "job_id", id, "error", err)
			continue
		}
		q.logger.Debug("lease expired, job returned to queue", "job", job.String())
	}
}

func (q *RedisQueue) promoteDelayed(ctx context.Context) {
	now := float64(time.Now().Unix())
	members, err := q.rdb.ZRangeByScore(ctx, keyDelayedSet, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil || len(members) == 0 {
		return
	}
	for _, raw := range members {
		job, err := decodeJob([]byte(raw))
		if err != nil {
			q.rdb.ZRem(ctx, keyDelayedSet, raw)
			continue
		}
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, keyDelayedSet, raw)
		pipe.RPush(ctx, waitingKey(job.Priority), raw)
		pipe.HSet(ctx, keyIndex, job.JobID, "waiting")
		if _, err := pipe.Exec(ctx); err != nil {
			q.logger.Error("promote delayed job failed", "job_id", job.JobID, "error", err)
		}
	}
}
