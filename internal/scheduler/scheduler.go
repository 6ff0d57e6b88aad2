// Package scheduler implements C6: a single-process recurring
// scheduler that keeps one timer per active sheet, firing each sheet
// through read → enqueue → aggregate → write-back → rearm
// (SPEC_FULL.md §4.4).
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/scraplink/linkaudit/internal/notifier"
	"github.com/scraplink/linkaudit/internal/observability"
	"github.com/scraplink/linkaudit/internal/queue"
	"github.com/scraplink/linkaudit/internal/repository"
	"github.com/scraplink/linkaudit/internal/sheets"
	"github.com/scraplink/linkaudit/internal/types"
)

// armEpsilon is the minimum lead time a bootstrap timer is given over
// "now", so an overdue sheet fires promptly rather than immediately
// racing its own goroutine startup.
const armEpsilon = 2 * time.Second

// Scheduler owns one timer per active sheet and drives each fire
// sequence end to end.
type Scheduler struct {
	repo     repository.Repository
	queue    queue.Queue
	notifier notifier.Notifier
	sheets   sheets.Adapter
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	cancel map[string]context.CancelFunc

	wg sync.WaitGroup

	metrics *observability.Metrics
}

// New builds a scheduler bound to its four collaborators.
func New(repo repository.Repository, q queue.Queue, n notifier.Notifier, adapter sheets.Adapter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		repo:     repo,
		queue:    q,
		notifier: n,
		sheets:   adapter,
		logger:   logger.With("component", "scheduler"),
		timers:   make(map[string]*time.Timer),
		cancel:   make(map[string]context.CancelFunc),
	}
}

// SetMetrics attaches a Prometheus exporter. Optional: with none
// attached, sheet-run observations are simply skipped.
func (s *Scheduler) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// Bootstrap loads every active sheet from the repository and arms a
// timer for each, firing at max(next_run, now+epsilon).
func (s *Scheduler) Bootstrap(ctx context.Context) error {
	active, err := s.repo.ListActiveSheets(ctx)
	if err != nil {
		return err
	}
	for _, sheet := range active {
		s.arm(ctx, sheet)
	}
	s.logger.Info("scheduler bootstrapped", "active_sheets", len(active))
	return nil
}

// arm schedules sheet's next fire. Safe to call repeatedly for the
// same sheet id; any existing timer is replaced.
func (s *Scheduler) arm(ctx context.Context, sheet *types.Sheet) {
	if sheet.Interval == types.IntervalManual {
		return
	}

	delay := armEpsilon
	if sheet.NextRun != nil {
		if d := time.Until(*sheet.NextRun); d > delay {
			delay = d
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[sheet.ID]; ok {
		existing.Stop()
	}

	timer := time.AfterFunc(delay, func() {
		s.fire(ctx, sheet.ID)
	})
	s.timers[sheet.ID] = timer
}

// Cancel deletes a sheet's timer, marks it inactive, and lets any
// in-flight jobs drain to their verdicts without revoking them
// (SPEC_FULL.md §5).
func (s *Scheduler) Cancel(ctx context.Context, sheetID string) error {
	s.mu.Lock()
	if timer, ok := s.timers[sheetID]; ok {
		timer.Stop()
		delete(s.timers, sheetID)
	}
	s.mu.Unlock()

	sheet, err := s.repo.GetSheet(ctx, sheetID)
	if err != nil {
		return err
	}
	sheet.Status = types.SheetStatusInactive
	return s.repo.UpdateSheet(ctx, sheet)
}

// Shutdown stops every armed timer without touching repository state;
// in-flight fires already running are left to complete.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// fire runs one complete sheet run (SPEC_FULL.md §4.4 steps 1-5).
func (s *Scheduler) fire(ctx context.Context, sheetID string) {
	s.wg.Add(1)
	defer s.wg.Done()

	logger := s.logger.With("sheet_id", sheetID)

	sheet, err := s.repo.GetSheet(ctx, sheetID)
	if err != nil {
		logger.Error("fire: load sheet failed", "error", err)
		return
	}

	sheet.Status = types.SheetStatusAnalysing
	if err := s.repo.UpdateSheet(ctx, sheet); err != nil {
		logger.Error("fire: mark analysing failed", "error", err)
	}

	rowsAudited, err := s.runOnce(ctx, sheet, logger)
	if err != nil {
		logger.Error("fire: run failed, sheet will not rearm", "error", err)
		sheet.Status = types.SheetStatusError
		if upErr := s.repo.UpdateSheet(ctx, sheet); upErr != nil {
			logger.Error("fire: mark error failed", "error", upErr)
		}
		_ = s.notifier.Publish(ctx, sheet.ProjectID, notifier.EventSheetsAnalysisError, err.Error())
		if s.metrics != nil {
			s.metrics.ObserveSheetRun("error", rowsAudited)
		}
		return
	}

	now := time.Now()
	sheet.Status = types.SheetStatusChecked
	sheet.LastRun = &now
	sheet.RunCount++
	if next, ok := types.NextFireAfter(sheet.Interval, now); ok {
		sheet.NextRun = &next
	}
	if err := s.repo.UpdateSheet(ctx, sheet); err != nil {
		logger.Error("fire: update sheet run state failed", "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveSheetRun("checked", rowsAudited)
	}

	s.arm(ctx, sheet)
}

// runOnce performs steps 2-4 of a fire sequence: read the external
// sheet, reset prior sheet-kind links, enqueue one job per URL,
// wait for every job to resolve, then write the aggregated result
// back in row order.
func (s *Scheduler) runOnce(ctx context.Context, sheet *types.Sheet, logger *slog.Logger) (int, error) {
	sheetName, err := s.sheets.GetMetadata(ctx, sheet.SpreadsheetRef)
	if err != nil {
		return 0, err
	}

	read, err := s.sheets.Read(ctx, sheet.SpreadsheetRef, sheetName, sheet.URLColumn, sheet.TargetColumn, sheet.TargetDomain)
	if err != nil {
		return 0, err
	}
	if len(read.URLs) == 0 {
		logger.Info("fire: no rows to audit")
		return 0, nil
	}

	if err := s.repo.ResetAnalysis(ctx, sheet.ProjectID, types.LinkKindSheet); err != nil {
		return 0, err
	}

	priority, err := s.repo.GetUserPriority(ctx, sheet.UserID)
	if err != nil {
		priority = types.PriorityFree
	}

	_ = s.notifier.Publish(ctx, sheet.ProjectID, notifier.EventSheetsAnalysisStarted, nil)

	linkIDs := make([]string, 0, len(read.URLs))
	for i, rawURL := range read.URLs {
		target := sheet.TargetDomain
		if i < len(read.Targets) && read.Targets[i] != "" {
			target = read.Targets[i]
		}
		normURL, target, err := normaliseRow(rawURL, target)
		if err != nil {
			logger.Warn("fire: skipping invalid row", "row", i, "url", rawURL, "error", err)
			continue
		}

		linkID := types.LinkIDFor(types.LinkKindSheet, normURL, target, sheet.ProjectID)
		link := &types.Link{
			ID:                   linkID,
			ProjectID:            sheet.ProjectID,
			SourceURL:            normURL,
			TargetDomain:         target,
			OriginalTargetDomain: target,
			Kind:                 types.LinkKindSheet,
			State:                types.LinkStatePending,
			RowIndex:             i,
			SheetID:              sheet.ID,
		}
		if err := s.repo.UpsertLink(ctx, link); err != nil {
			return 0, err
		}

		job := &types.Job{
			JobID:        types.DeterministicJobID(types.LinkKindSheet, normURL, sheet.ProjectID, sheet.RunCount),
			Kind:         types.LinkKindSheet,
			UserID:       sheet.UserID,
			ProjectID:    sheet.ProjectID,
			Payload:      types.SheetJob{SheetID: sheet.ID, LinkID: linkID, RowIndex: i},
			SourceURL:    normURL,
			TargetDomain: target,
			Priority:     priority,
			EnqueuedAt:   time.Now(),
		}
		if _, err := s.queue.Enqueue(ctx, job); err != nil {
			return 0, err
		}
		linkIDs = append(linkIDs, linkID)
	}

	if len(linkIDs) == 0 {
		return 0, errors.New("no valid rows produced a job")
	}

	links, err := s.awaitCompletion(ctx, sheet.ProjectID, linkIDs)
	if err != nil {
		return 0, err
	}

	sort.Slice(links, func(i, j int) bool { return links[i].RowIndex < links[j].RowIndex })

	if err := s.sheets.WriteVerdicts(ctx, sheet.SpreadsheetRef, sheetName, sheet.ResultRange, links); err != nil {
		return len(links), err
	}
	s.sheets.Format(ctx, sheet.SpreadsheetRef, sheet.SpreadsheetRef.SheetGID, sheet.ResultRange, links)

	return len(links), nil
}

// awaitCompletion polls the repository until every link this run
// produced has reached a terminal state, mirroring the worker pool's
// own batch-completion check (SPEC_FULL.md §4.7) from the writer side.
func (s *Scheduler) awaitCompletion(ctx context.Context, projectID string, linkIDs []string) ([]*types.Link, error) {
	want := make(map[string]bool, len(linkIDs))
	for _, id := range linkIDs {
		want[id] = true
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		links, err := s.repo.ListByProjectAndKind(ctx, projectID, types.LinkKindSheet)
		if err != nil {
			return nil, err
		}

		resolved := make([]*types.Link, 0, len(linkIDs))
		for _, l := range links {
			if want[l.ID] && l.IsTerminal() {
				resolved = append(resolved, l)
			}
		}
		if len(resolved) == len(linkIDs) {
			return resolved, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// normaliseRow validates and normalises one sheet row's URL and
// target domain before it becomes a job.
func normaliseRow(rawURL, target string) (string, string, error) {
	if err := types.ValidateURL(rawURL); err != nil {
		return "", "", err
	}
	return rawURL, types.NormaliseDomain(target), nil
}
