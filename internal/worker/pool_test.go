package worker

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/scraplink/linkaudit/internal/config"
	"github.com/scraplink/linkaudit/internal/notifier"
	"github.com/scraplink/linkaudit/internal/queue"
	"github.com/scraplink/linkaudit/internal/repository"
	"github.com/scraplink/linkaudit/internal/types"
)

type fakeAnalyser struct {
	verdict *types.Verdict
	err     error
}

func (f *fakeAnalyser) Analyse(ctx context.Context, sourceURL, targetDomain string) (*types.Verdict, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.verdict, nil
}

func newTestPool(t *testing.T, an Analyser) (*Pool, queue.Queue, repository.Repository, notifier.Notifier) {
	t.Helper()
	q := queue.NewMemoryQueue(queue.MemoryQueueConfig{MaxAttempts: 3, BackoffBase: 10 * time.Millisecond})
	repo := repository.NewMemoryRepository()
	n := notifier.NewMemoryNotifier()
	p := New(q, repo, n, an, config.WorkerConfig{Concurrency: 2, IdlePollInterval: 5 * time.Millisecond}, slog.Default())
	return p, q, repo, n
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPoolProcessesSuccessfulJob(t *testing.T) {
	verdict := &types.Verdict{
		Status:     types.LinkStateOK,
		LinkClass:  types.LinkClassDofollow,
		Indexable:  true,
		CheckedAt:  time.Now(),
	}
	p, q, repo, n := newTestPool(t, &fakeAnalyser{verdict: verdict})

	ch, cancel := n.Subscribe("proj1")
	defer cancel()

	job := &types.Job{
		JobID:        "job1",
		Kind:         types.LinkKindBatch,
		ProjectID:    "proj1",
		Payload:      types.BatchJob{LinkID: "link1"},
		SourceURL:    "https://example.com/post",
		TargetDomain: "target.com",
		Priority:     types.PriorityFree,
		EnqueuedAt:   time.Now(),
	}
	if _, err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()
	p.Start(ctx)

	waitForCondition(t, time.Second, func() bool {
		return p.Stats.JobsOK.Load() == 1
	})

	linkID := types.LinkIDFor(job.Kind, job.SourceURL, job.TargetDomain, job.ProjectID)
	link, err := repo.GetLink(context.Background(), linkID)
	if err != nil {
		t.Fatalf("expected persisted link, got error: %v", err)
	}
	if link.State != types.LinkStateOK {
		t.Fatalf("expected state ok, got %s", link.State)
	}

	select {
	case evt := <-ch:
		if evt.Kind != notifier.EventLinkUpdated {
			t.Fatalf("expected link_updated, got %s", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a link_updated event")
	}

	cancelCtx()
	p.Wait()
}

func TestPoolRecordsProblemOnAnalyserError(t *testing.T) {
	fe := &types.FetchError{URL: "https://example.com", Kind: types.KindTransientFetch, Retryable: false}
	p, q, repo, _ := newTestPool(t, &fakeAnalyser{err: fe})

	job := &types.Job{
		JobID:        "job2",
		Kind:         types.LinkKindBatch,
		ProjectID:    "proj2",
		Payload:      types.BatchJob{LinkID: "link2"},
		SourceURL:    "https://example.com/broken",
		TargetDomain: "target.com",
		Priority:     types.PriorityFree,
		EnqueuedAt:   time.Now(),
	}
	if _, err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()
	p.Start(ctx)

	waitForCondition(t, time.Second, func() bool {
		return p.Stats.JobsFailed.Load() == 1
	})

	linkID := types.LinkIDFor(job.Kind, job.SourceURL, job.TargetDomain, job.ProjectID)
	link, err := repo.GetLink(context.Background(), linkID)
	if err != nil {
		t.Fatalf("expected persisted problem link, got error: %v", err)
	}
	if link.State != types.LinkStateProblem {
		t.Fatalf("expected state problem, got %s", link.State)
	}
	if link.LinkClass == nil || *link.LinkClass != types.LinkClassAbsent {
		t.Fatalf("expected link class absent, got %v", link.LinkClass)
	}
	if link.NonIndexableReason == nil || *link.NonIndexableReason != string(types.KindTransientFetch) {
		t.Fatalf("expected reason %s, got %v", types.KindTransientFetch, link.NonIndexableReason)
	}

	cancelCtx()
	p.Wait()
}

func TestPoolEmitsAnalysisCompletedWhenBatchDrains(t *testing.T) {
	verdict := &types.Verdict{Status: types.LinkStateOK, LinkClass: types.LinkClassDofollow, Indexable: true, CheckedAt: time.Now()}
	p, q, _, n := newTestPool(t, &fakeAnalyser{verdict: verdict})

	ch, cancel := n.Subscribe("proj3")
	defer cancel()

	job := &types.Job{
		JobID:        "job3",
		Kind:         types.LinkKindBatch,
		ProjectID:    "proj3",
		Payload:      types.BatchJob{LinkID: "link3"},
		SourceURL:    "https://example.com/only",
		TargetDomain: "target.com",
		Priority:     types.PriorityFree,
		EnqueuedAt:   time.Now(),
	}
	if _, err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()
	p.Start(ctx)

	var sawStarted, sawCompleted bool
	deadline := time.After(time.Second)
	for !sawCompleted {
		select {
		case evt := <-ch:
			switch evt.Kind {
			case notifier.EventAnalysisStarted:
				sawStarted = true
			case notifier.EventAnalysisCompleted:
				sawCompleted = true
			}
		case <-deadline:
			t.Fatalf("timed out waiting for completion events (started=%v completed=%v)", sawStarted, sawCompleted)
		}
	}
	if !sawStarted {
		t.Fatal("expected analysis_started before analysis_completed")
	}

	cancelCtx()
	p.Wait()
}
