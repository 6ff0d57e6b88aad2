package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scraplink/linkaudit/internal/types"
)

func newTestQueue(t *testing.T) *MemoryQueue {
	t.Helper()
	q := NewMemoryQueue(MemoryQueueConfig{
		MaxAttempts:     3,
		BackoffBase:     10 * time.Millisecond,
		RetainCompleted: 10,
		RetainFailed:    10,
		DedupByJobID:    true,
		ReapInterval:    10 * time.Millisecond,
	})
	t.Cleanup(func() { q.Close() })
	return q
}

func mustJob(id string, priority types.Priority) *types.Job {
	return &types.Job{
		JobID:      id,
		Kind:       types.LinkKindBatch,
		ProjectID:  "proj-1",
		Payload:    types.BatchJob{LinkID: "link-" + id},
		SourceURL:  "https://src.example.com/" + id,
		Priority:   priority,
		EnqueuedAt: time.Now(),
	}
}

func TestMemoryQueuePriorityOrdering(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	low := mustJob("low", types.PriorityFree)
	high := mustJob("high", types.PriorityEnterprise)

	if _, err := q.Enqueue(ctx, low); err != nil {
		t.Fatalf("enqueue low: %v", err)
	}
	if _, err := q.Enqueue(ctx, high); err != nil {
		t.Fatalf("enqueue high: %v", err)
	}

	got, err := q.Lease(ctx, time.Second)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if got.JobID != "high" {
		t.Fatalf("expected enterprise job to lease first, got %q", got.JobID)
	}
}

func TestMemoryQueueFIFOWithinPriority(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first := mustJob("first", types.PriorityPro)
	time.Sleep(time.Millisecond)
	second := mustJob("second", types.PriorityPro)

	if _, err := q.Enqueue(ctx, first); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := q.Lease(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got.JobID != "first" {
		t.Fatalf("expected FIFO order within same priority, got %q", got.JobID)
	}
}

func TestMemoryQueueDedupByJobID(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job := mustJob("dup", types.PriorityFree)
	admitted, err := q.Enqueue(ctx, job)
	if err != nil {
		t.Fatal(err)
	}
	if !admitted {
		t.Fatal("expected first enqueue to be admitted")
	}
	admitted, err = q.Enqueue(ctx, mustJob("dup", types.PriorityFree))
	if err != nil {
		t.Fatal(err)
	}
	if admitted {
		t.Fatal("expected second enqueue of a waiting job id to be deduped")
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Waiting != 1 {
		t.Fatalf("expected dedup to suppress second enqueue, got %d waiting", stats.Waiting)
	}
}

func TestMemoryQueueEnqueueAfterCompleteIsAdmitted(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job := mustJob("rerun", types.PriorityFree)
	if _, err := q.Enqueue(ctx, job); err != nil {
		t.Fatal(err)
	}

	leased, err := q.Lease(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Complete(ctx, leased.JobID); err != nil {
		t.Fatal(err)
	}

	admitted, err := q.Enqueue(ctx, mustJob("rerun", types.PriorityFree))
	if err != nil {
		t.Fatal(err)
	}
	if !admitted {
		t.Fatal("expected a completed job id to be free for re-enqueue")
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Waiting != 1 {
		t.Fatalf("expected the re-enqueued job to be waiting, got stats %+v", stats)
	}
	if stats.Completed != 0 {
		t.Fatalf("expected re-enqueue to clear stale completed bookkeeping, got stats %+v", stats)
	}
}

func TestMemoryQueueFailExhaustsToDeadLetter(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job := mustJob("flaky", types.PriorityFree)
	if _, err := q.Enqueue(ctx, job); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		leased, err := q.Lease(ctx, time.Second)
		if err != nil {
			t.Fatalf("lease attempt %d: %v", i, err)
		}
		if err := q.Fail(ctx, leased.JobID, errors.New("boom")); err != nil {
			t.Fatalf("fail attempt %d: %v", i, err)
		}
		if i < 2 {
			time.Sleep(50 * time.Millisecond)
		}
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.DeadLettered != 1 {
		t.Fatalf("expected job to be dead-lettered after exhausting attempts, got stats %+v", stats)
	}
}

func TestMemoryQueueCompleteRequiresLease(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Complete(ctx, "never-leased"); err == nil {
		t.Fatal("expected error completing a job that was never leased")
	}
}

func TestMemoryQueueListByProjectAndKind(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job := mustJob("p1-job", types.PriorityFree)
	if _, err := q.Enqueue(ctx, job); err != nil {
		t.Fatal(err)
	}

	jobs, err := q.ListByProjectAndKind(ctx, "proj-1", types.LinkKindBatch)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 unresolved job, got %d", len(jobs))
	}

	leased, err := q.Lease(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Complete(ctx, leased.JobID); err != nil {
		t.Fatal(err)
	}

	jobs, err = q.ListByProjectAndKind(ctx, "proj-1", types.LinkKindBatch)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no unresolved jobs after completion, got %d", len(jobs))
	}
}
