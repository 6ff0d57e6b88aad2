// Package api exposes the batch ingress: a single POST endpoint that
// turns a list of (source_url, target_domain) pairs into queue jobs
// (SPEC_FULL.md §6).
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/scraplink/linkaudit/internal/observability"
	"github.com/scraplink/linkaudit/internal/queue"
	"github.com/scraplink/linkaudit/internal/repository"
	"github.com/scraplink/linkaudit/internal/types"
)

// Server is the batch-ingress HTTP surface.
type Server struct {
	engine *gin.Engine
	queue  queue.Queue
	repo   repository.Repository
	logger *slog.Logger
	valid  *validator.Validate
}

// linkPair is one row of a batch submission. Tags are duplicated
// under both "binding" (gin's own validator instance, run during
// ShouldBindJSON) and "validate" (this package's own instance, run
// again in handleBatch) since the two engines look for different tag
// names by default.
type linkPair struct {
	SourceURL    string `json:"sourceUrl" binding:"required,url" validate:"required,url"`
	TargetDomain string `json:"targetDomain" binding:"required" validate:"required"`
}

// batchRequest is the POST /batch body.
type batchRequest struct {
	ProjectID string     `json:"projectId" binding:"required" validate:"required"`
	UserID    string     `json:"userId" binding:"required" validate:"required"`
	Links     []linkPair `json:"links" binding:"required,min=1,dive" validate:"required,min=1,dive"`
}

type batchResult struct {
	BatchID  string   `json:"batchId"`
	Enqueued int      `json:"enqueued"`
	Deduped  int      `json:"deduped,omitempty"`
	Rejected []string `json:"rejected,omitempty"`
}

// New builds a Server with its routes registered. Pass gin.ReleaseMode
// via gin.SetMode before calling this in production.
func New(q queue.Queue, repo repository.Repository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("linkaudit-api"))

	s := &Server{
		engine: engine,
		queue:  q,
		repo:   repo,
		logger: logger.With("component", "api.server"),
		valid:  validator.New(),
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine, e.g. for ListenAndServe
// or for tests that want to drive requests with httptest.
func (s *Server) Engine() *gin.Engine { return s.engine }

// UseMetrics installs the Prometheus request-latency middleware. gin
// binds middleware to a route when the route is registered, so this
// rebuilds the engine with the middleware in place and registers the
// routes again; call it before Engine is used to serve traffic. A
// server with no metrics attached simply skips instrumentation.
func (s *Server) UseMetrics(m *observability.Metrics) {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("linkaudit-api"))
	engine.Use(m.GinMiddleware())
	s.engine = engine
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.POST("/batch", s.handleBatch)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleBatch accepts a project/user id plus a list of link pairs and
// enqueues one job per pair. A request whose body fails binding or
// tag validation (a missing field, a sourceUrl the "url" tag rejects)
// is answered 400 as a whole and nothing is enqueued; past that point
// a row that fails types.ValidateURL, the link upsert, or the enqueue
// is listed in Rejected while the other rows proceed.
func (s *Server) handleBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// ShouldBindJSON already validates struct tags through gin's own
	// validator engine; re-running it here is redundant on the happy
	// path but guards the case a caller constructs batchRequest
	// directly (tests, future internal callers) without going through
	// JSON binding.
	if err := s.valid.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	priority, err := s.repo.GetUserPriority(c.Request.Context(), req.UserID)
	if err != nil {
		priority = types.PriorityFree
	}

	// batchID is a correlation id for this submission only — jobs and
	// links within it still key off their own deterministic ids, so a
	// pair resubmitted while its prior job is still waiting/leased/
	// delayed is deduped rather than enqueued twice.
	batchID := uuid.NewString()
	logger := s.logger.With("batch_id", batchID, "project_id", req.ProjectID)

	result := batchResult{BatchID: batchID}
	for _, pair := range req.Links {
		targetDomain := types.NormaliseDomain(pair.TargetDomain)
		if err := types.ValidateURL(pair.SourceURL); err != nil {
			result.Rejected = append(result.Rejected, pair.SourceURL)
			continue
		}

		job := &types.Job{
			JobID:        types.DeterministicJobID(types.LinkKindBatch, pair.SourceURL, req.ProjectID, 0),
			Kind:         types.LinkKindBatch,
			UserID:       req.UserID,
			ProjectID:    req.ProjectID,
			Payload:      types.BatchJob{LinkID: types.LinkIDFor(types.LinkKindBatch, pair.SourceURL, targetDomain, req.ProjectID)},
			SourceURL:    pair.SourceURL,
			TargetDomain: targetDomain,
			Priority:     priority,
			EnqueuedAt:   time.Now(),
		}

		link := &types.Link{
			ID:           job.Payload.(types.BatchJob).LinkID,
			ProjectID:    req.ProjectID,
			SourceURL:    pair.SourceURL,
			TargetDomain: targetDomain,
			Kind:         types.LinkKindBatch,
			State:        types.LinkStatePending,
			RowIndex:     -1,
		}
		if err := s.repo.UpsertLink(c.Request.Context(), link); err != nil {
			logger.Error("batch: upsert link failed", "error", err)
			result.Rejected = append(result.Rejected, pair.SourceURL)
			continue
		}

		admitted, err := s.queue.Enqueue(c.Request.Context(), job)
		if err != nil {
			logger.Error("batch: enqueue failed", "error", err)
			result.Rejected = append(result.Rejected, pair.SourceURL)
			continue
		}
		if admitted {
			result.Enqueued++
		} else {
			result.Deduped++
		}
	}

	logger.Info("batch processed", "enqueued", result.Enqueued, "deduped", result.Deduped, "rejected", len(result.Rejected))
	c.JSON(http.StatusAccepted, result)
}
