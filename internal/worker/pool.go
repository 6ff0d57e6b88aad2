// Package worker implements C5: a fixed pool of goroutines draining
// the priority queue, running each job through the link analyser, and
// persisting + publishing the result.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scraplink/linkaudit/internal/config"
	"github.com/scraplink/linkaudit/internal/notifier"
	"github.com/scraplink/linkaudit/internal/observability"
	"github.com/scraplink/linkaudit/internal/queue"
	"github.com/scraplink/linkaudit/internal/repository"
	"github.com/scraplink/linkaudit/internal/types"
)

var tracer = otel.Tracer("linkaudit/worker")

// Analyser is the capability C5 needs from C3. Defined here, not
// imported as a concrete type, so the pool can be exercised with a
// fake in tests without paging in a headless browser.
type Analyser interface {
	Analyse(ctx context.Context, sourceURL, targetDomain string) (*types.Verdict, error)
}

// Stats tracks pool-wide counters, read by the metrics exporter and
// the idle-completion heuristic used in tests.
type Stats struct {
	JobsProcessed atomic.Int64
	JobsOK        atomic.Int64
	JobsFailed    atomic.Int64
	ActiveWorkers atomic.Int32
}

// Pool is C5: N independent workers sharing only the queue, the
// repository, and the notifier — all already thread-safe, so the pool
// itself holds no job-level locking (SPEC_FULL.md §4.2).
type Pool struct {
	queue    queue.Queue
	repo     repository.Repository
	notifier notifier.Notifier
	analyser Analyser
	cfg      config.WorkerConfig
	logger   *slog.Logger

	Stats   Stats
	metrics *observability.Metrics

	wg sync.WaitGroup

	// started tracks, per project+kind, whether analysis_started has
	// already been published for the current run; cleared once the
	// batch-completion check (§4.7) fires analysis_completed, so the
	// next run's first job re-announces it.
	started sync.Map
}

type runKey struct {
	projectID string
	kind      types.LinkKind
}

// New builds a worker pool. Unset fields default to 5 workers, a
// 100ms idle poll interval (the ≤100ms idle-sleep named in
// SPEC_FULL.md §4.2) and a 30s shutdown grace. Every lease is taken
// for defaultLeaseTimeout (90s).
func New(q queue.Queue, repo repository.Repository, n notifier.Notifier, analyser Analyser, cfg config.WorkerConfig, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.IdlePollInterval <= 0 {
		cfg.IdlePollInterval = 100 * time.Millisecond
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}
	return &Pool{
		queue:    q,
		repo:     repo,
		notifier: n,
		analyser: analyser,
		cfg:      cfg,
		logger:   logger.With("component", "worker.pool"),
	}
}

const defaultLeaseTimeout = 90 * time.Second

// Start launches the configured number of worker goroutines. It
// returns immediately; call Wait or Shutdown to block for completion.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting worker pool", "workers", p.cfg.Concurrency)
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker goroutine has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// SetMetrics attaches a Prometheus exporter. Optional: a nil metrics
// pointer (the zero value before this is called) disables recording.
func (p *Pool) SetMetrics(m *observability.Metrics) {
	p.metrics = m
}

// WorkerStats snapshots the pool's atomic counters for the dashboard
// and metrics exporter.
func (p *Pool) WorkerStats() observability.WorkerStats {
	return observability.WorkerStats{
		JobsProcessed: p.Stats.JobsProcessed.Load(),
		JobsOK:        p.Stats.JobsOK.Load(),
		JobsFailed:    p.Stats.JobsFailed.Load(),
		ActiveWorkers: p.Stats.ActiveWorkers.Load(),
	}
}

// Shutdown waits up to grace for the workers to return, then returns.
// Workers stop taking new leases once the ctx passed to Start is
// cancelled; Shutdown does not cancel it. It does not force-close
// anything itself — workers that
// exceed grace are left to finish; SPEC_FULL.md §5 places the actual
// force-close of a rendering context on the analyser's own per-call
// deadline, not on the pool.
func (p *Pool) Shutdown(grace time.Duration) {
	if grace <= 0 {
		grace = p.cfg.ShutdownGrace
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		p.logger.Warn("shutdown grace window elapsed with workers still active")
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With("worker_id", id)

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.Lease(ctx, defaultLeaseTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			time.Sleep(p.cfg.IdlePollInterval)
			continue
		}

		p.Stats.ActiveWorkers.Add(1)
		p.processJob(ctx, logger, job)
		p.Stats.ActiveWorkers.Add(-1)
		p.Stats.JobsProcessed.Add(1)
	}
}

// processJob runs the lease → analyse → persist → notify →
// complete/fail loop body for a single job.
func (p *Pool) processJob(ctx context.Context, logger *slog.Logger, job *types.Job) {
	logger = logger.With("job_id", job.JobID, "project_id", job.ProjectID, "url", job.SourceURL)

	p.announceStart(ctx, job)

	ctx, span := tracer.Start(ctx, "job.analyse",
		trace.WithAttributes(
			attribute.String("job.id", job.JobID),
			attribute.String("job.kind", string(job.Kind)),
			attribute.String("job.project_id", job.ProjectID),
		),
	)
	defer span.End()

	start := time.Now()
	verdict, err := p.analyser.Analyse(ctx, job.SourceURL, job.TargetDomain)
	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int64("job.duration_ms", elapsed.Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	link, getErr := p.repo.GetLink(ctx, types.LinkIDFor(job.Kind, job.SourceURL, job.TargetDomain, job.ProjectID))
	if getErr != nil {
		link = &types.Link{
			ID:           types.LinkIDFor(job.Kind, job.SourceURL, job.TargetDomain, job.ProjectID),
			ProjectID:    job.ProjectID,
			SourceURL:    job.SourceURL,
			TargetDomain: job.TargetDomain,
			Kind:         job.Kind,
			RowIndex:     -1,
		}
	}
	if sj, ok := job.Payload.(types.SheetJob); ok {
		link.SheetID = sj.SheetID
		link.RowIndex = sj.RowIndex
	}

	if err != nil {
		p.Stats.JobsFailed.Add(1)
		link.State = types.LinkStateProblem
		absent := types.LinkClassAbsent
		link.LinkClass = &absent
		if fe, ok := err.(*types.FetchError); ok {
			reason := string(fe.Kind)
			link.NonIndexableReason = &reason
		}

		if upErr := p.repo.UpsertLink(ctx, link); upErr != nil {
			logger.Error("failed to persist problem link after analyser error", "error", upErr)
		}
		_ = p.notifier.Publish(ctx, job.ProjectID, linkUpdatedEvent(job.Kind), link)
		logger.Warn("analysis failed", "error", err)

		if failErr := p.queue.Fail(ctx, job.JobID, err); failErr != nil {
			logger.Error("queue.Fail failed", "error", failErr)
		}

		if p.metrics != nil {
			reason := ""
			if link.NonIndexableReason != nil {
				reason = *link.NonIndexableReason
			}
			p.metrics.ObserveAnalysis("problem", string(types.LinkClassAbsent), reason, elapsed)
		}
	} else {
		p.Stats.JobsOK.Add(1)
		verdict.ApplyTo(link)

		if upErr := p.repo.UpsertLink(ctx, link); upErr != nil {
			logger.Error("failed to persist verdict", "error", upErr)
		}
		_ = p.notifier.Publish(ctx, job.ProjectID, linkUpdatedEvent(job.Kind), link)

		if compErr := p.queue.Complete(ctx, job.JobID); compErr != nil {
			logger.Error("queue.Complete failed", "error", compErr)
		}

		if p.metrics != nil {
			class := ""
			if link.LinkClass != nil {
				class = string(*link.LinkClass)
			}
			reason := ""
			if link.NonIndexableReason != nil {
				reason = *link.NonIndexableReason
			}
			p.metrics.ObserveAnalysis("ok", class, reason, elapsed)
		}
	}

	p.checkBatchCompletion(ctx, logger, job.ProjectID, job.Kind)
}

func (p *Pool) announceStart(ctx context.Context, job *types.Job) {
	key := runKey{projectID: job.ProjectID, kind: job.Kind}
	if _, loaded := p.started.LoadOrStore(key, true); !loaded {
		_ = p.notifier.Publish(ctx, job.ProjectID, analysisStartedEvent(job.Kind), nil)
	}
}

// checkBatchCompletion implements §4.7: after every finished job, ask
// the queue and the repository whether any work remains for this
// project+kind. If both report none, the run is over.
func (p *Pool) checkBatchCompletion(ctx context.Context, logger *slog.Logger, projectID string, kind types.LinkKind) {
	pending, err := p.queue.ListByProjectAndKind(ctx, projectID, kind)
	if err != nil {
		logger.Error("batch completion check: queue lookup failed", "error", err)
		return
	}
	if len(pending) > 0 {
		return
	}

	links, err := p.repo.ListByProjectAndKind(ctx, projectID, kind)
	if err != nil {
		logger.Error("batch completion check: repository lookup failed", "error", err)
		return
	}
	for _, l := range links {
		if !l.IsTerminal() {
			return
		}
	}

	key := runKey{projectID: projectID, kind: kind}
	p.started.Delete(key)
	_ = p.notifier.Publish(ctx, projectID, analysisCompletedEvent(kind), nil)
}
