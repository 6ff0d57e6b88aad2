package scheduler

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/scraplink/linkaudit/internal/notifier"
	"github.com/scraplink/linkaudit/internal/queue"
	"github.com/scraplink/linkaudit/internal/repository"
	"github.com/scraplink/linkaudit/internal/sheets"
	"github.com/scraplink/linkaudit/internal/types"
)

// startResolverStub stands in for the worker pool: it leases every job the
// scheduler enqueues and immediately marks the matching link ok, so
// runOnce's awaitCompletion barrier can clear without a real analyser.
func startResolverStub(t *testing.T, ctx context.Context, q queue.Queue, repo repository.Repository) {
	t.Helper()
	go func() {
		for {
			job, err := q.Lease(ctx, 5*time.Second)
			if err != nil {
				return
			}
			linkID := types.LinkIDFor(job.Kind, job.SourceURL, job.TargetDomain, job.ProjectID)
			link, err := repo.GetLink(ctx, linkID)
			if err != nil {
				continue
			}
			code := 200
			indexable := true
			class := types.LinkClassDofollow
			now := time.Now()
			link.State = types.LinkStateOK
			link.ResponseCode = &code
			link.Indexable = &indexable
			link.LinkClass = &class
			link.CheckedAt = &now
			_ = repo.UpsertLink(ctx, link)
			_ = q.Complete(ctx, job.JobID)
		}
	}()
}

func TestSchedulerRunOnceWritesVerdictsInRowOrder(t *testing.T) {
	repo := repository.NewMemoryRepository()
	q := queue.NewMemoryQueue(queue.MemoryQueueConfig{MaxAttempts: 3, BackoffBase: 10 * time.Millisecond})
	n := notifier.NewMemoryNotifier()
	adapter := sheets.NewMemoryAdapter("Sheet1", sheets.ReadResult{
		URLs:       []string{"https://a.example.com/1", "https://b.example.com/2"},
		Targets:    []string{"target.com", "target.com"},
		UniqueURLs: 2,
		TotalRows:  2,
	})

	sheet := &types.Sheet{
		ID:           "sheet1",
		ProjectID:    "proj1",
		UserID:       "user1",
		TargetDomain: "target.com",
		URLColumn:    "A",
		TargetColumn: "B",
		ResultRange:  []string{"C", "D", "E", "F", "G"},
		Interval:     types.IntervalManual,
		Status:       types.SheetStatusNotStarted,
	}
	if err := repo.UpdateSheet(context.Background(), sheet); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	startResolverStub(t, ctx, q, repo)

	s := New(repo, q, n, adapter, slog.Default())
	rowsAudited, err := s.runOnce(ctx, sheet, slog.Default())
	if err != nil {
		t.Fatalf("runOnce failed: %v", err)
	}
	if rowsAudited != 2 {
		t.Fatalf("expected 2 rows audited, got %d", rowsAudited)
	}

	written, ok := adapter.Written[sheet.SpreadsheetRef.SpreadsheetID]
	if !ok {
		t.Fatal("expected verdicts to be written")
	}
	if len(written) != 2 {
		t.Fatalf("expected 2 rows written, got %d", len(written))
	}
	if written[0].RowIndex != 0 || written[1].RowIndex != 1 {
		t.Fatalf("expected row-ordered output, got indices %d,%d", written[0].RowIndex, written[1].RowIndex)
	}
	if adapter.Formats != 1 {
		t.Fatalf("expected Format to be called once, got %d", adapter.Formats)
	}
}

func TestSchedulerRunOnceSucceedsAcrossRepeatedFires(t *testing.T) {
	repo := repository.NewMemoryRepository()
	q := queue.NewMemoryQueue(queue.MemoryQueueConfig{MaxAttempts: 3, BackoffBase: 10 * time.Millisecond, DedupByJobID: true})
	n := notifier.NewMemoryNotifier()
	adapter := sheets.NewMemoryAdapter("Sheet1", sheets.ReadResult{
		URLs:       []string{"https://a.example.com/1"},
		Targets:    []string{"target.com"},
		UniqueURLs: 1,
		TotalRows:  1,
	})

	sheet := &types.Sheet{
		ID:           "sheet3",
		ProjectID:    "proj3",
		UserID:       "user3",
		TargetDomain: "target.com",
		URLColumn:    "A",
		TargetColumn: "B",
		ResultRange:  []string{"C", "D", "E", "F", "G"},
		Interval:     types.IntervalManual,
		Status:       types.SheetStatusNotStarted,
	}
	if err := repo.UpdateSheet(context.Background(), sheet); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	startResolverStub(t, ctx, q, repo)

	s := New(repo, q, n, adapter, slog.Default())

	// First fire, as fire() would run it: runOnce at RunCount 0, then the
	// scheduler's own post-run increment.
	if _, err := s.runOnce(ctx, sheet, slog.Default()); err != nil {
		t.Fatalf("first runOnce failed: %v", err)
	}
	sheet.RunCount++

	// Second fire reuses the exact same source url/project/kind. Without
	// an epoch in the job id it would reuse the first run's id, and dedup
	// drops that id while the first run's job is still leased or delayed
	// (its link can already be terminal by then), leaving runOnce waiting
	// on a job that was never enqueued.
	rowsAudited, err := s.runOnce(ctx, sheet, slog.Default())
	if err != nil {
		t.Fatalf("second runOnce failed: %v", err)
	}
	if rowsAudited != 1 {
		t.Fatalf("expected 1 row audited on second fire, got %d", rowsAudited)
	}
}

func TestSchedulerRunOnceEmptySheetIsNotAnError(t *testing.T) {
	repo := repository.NewMemoryRepository()
	q := queue.NewMemoryQueue(queue.MemoryQueueConfig{})
	n := notifier.NewMemoryNotifier()
	adapter := sheets.NewMemoryAdapter("Sheet1", sheets.ReadResult{})

	sheet := &types.Sheet{
		ID:           "sheet2",
		ProjectID:    "proj2",
		UserID:       "user2",
		TargetDomain: "target.com",
		URLColumn:    "A",
		TargetColumn: "B",
		ResultRange:  []string{"C", "D", "E", "F", "G"},
		Interval:     types.IntervalManual,
	}

	s := New(repo, q, n, adapter, slog.Default())
	rowsAudited, err := s.runOnce(context.Background(), sheet, slog.Default())
	if err != nil {
		t.Fatalf("expected no error for empty sheet, got %v", err)
	}
	if rowsAudited != 0 {
		t.Fatalf("expected 0 rows audited for empty sheet, got %d", rowsAudited)
	}
}
