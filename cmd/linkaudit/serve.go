package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/scraplink/linkaudit/internal/analyser"
	"github.com/scraplink/linkaudit/internal/api"
	"github.com/scraplink/linkaudit/internal/config"
	"github.com/scraplink/linkaudit/internal/notifier"
	"github.com/scraplink/linkaudit/internal/observability"
	"github.com/scraplink/linkaudit/internal/queue"
	"github.com/scraplink/linkaudit/internal/repository"
	"github.com/scraplink/linkaudit/internal/scheduler"
	"github.com/scraplink/linkaudit/internal/sheets"
	"github.com/scraplink/linkaudit/internal/worker"
)

// serveCmd runs every long-lived component in one process: the batch
// API, the worker pool, and the recurring sheet scheduler.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the batch API, worker pool, and sheet scheduler",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := buildRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build repository: %w", err)
	}
	defer closeRepo()

	q, closeQueue, err := buildQueue(cfg, logger)
	if err != nil {
		return fmt.Errorf("build queue: %w", err)
	}
	defer closeQueue()

	n, err := buildNotifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}

	an, err := analyser.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("build analyser: %w", err)
	}
	defer an.Close()

	metrics := observability.NewMetrics()

	pool := worker.New(q, repo, n, an, cfg.Worker, logger)
	pool.SetMetrics(metrics)
	pool.Start(ctx)

	var sheetAdapter sheets.Adapter
	if cfg.Sheets.CredentialsFile != "" || cfg.Sheets.TokenFile != "" {
		googleAdapter, err := sheets.NewGoogleAdapter(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.TokenFile, cfg.Sheets.RequestTimeout, logger)
		if err != nil {
			return fmt.Errorf("build sheets adapter: %w", err)
		}
		sheetAdapter = googleAdapter
	} else {
		logger.Warn("neither sheets.credentials_file nor sheets.token_file set, recurring sheet audits are disabled")
		sheetAdapter = sheets.NewMemoryAdapter("", sheets.ReadResult{})
	}

	sched := scheduler.New(repo, q, n, sheetAdapter, logger)
	sched.SetMetrics(metrics)
	if err := sched.Bootstrap(ctx); err != nil {
		logger.Error("scheduler bootstrap failed", "error", err)
	}

	server := api.New(q, repo, logger)
	server.UseMetrics(metrics)

	httpServer := &http.Server{
		Addr:    cfg.API.Addr,
		Handler: server.Engine(),
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		observability.NewDashboard(q, pool).Register(mux)
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info("metrics server starting", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		go pollQueueDepth(ctx, q, metrics, logger)
	}

	var tracerShutdown func(context.Context) error
	if cfg.Metrics.OTLPTarget != "" {
		shutdown, err := observability.InitTracer(ctx, "linkaudit", cfg.Metrics.OTLPTarget)
		if err != nil {
			logger.Warn("tracer init failed, continuing without tracing", "error", err)
		} else {
			tracerShutdown = shutdown
		}
	}

	go func() {
		logger.Info("api server starting", "addr", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	sched.Shutdown()
	pool.Shutdown(cfg.Worker.ShutdownGrace)
	if tracerShutdown != nil {
		_ = tracerShutdown(shutdownCtx)
	}

	return nil
}

// pollQueueDepth refreshes the queue-depth gauges on a fixed interval
// until ctx is cancelled, since Stats() has no push-based equivalent.
func pollQueueDepth(ctx context.Context, q queue.Queue, metrics *observability.Metrics, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := q.Stats(ctx)
			if err != nil {
				logger.Warn("queue stats poll failed", "error", err)
				continue
			}
			metrics.ObserveQueueDepth(stats.Waiting, stats.Leased, stats.DeadLettered)
		}
	}
}

func buildRepository(ctx context.Context, cfg *config.Config) (repository.Repository, func(), error) {
	if cfg.DB.DSN == "" {
		return repository.NewMemoryRepository(), func() {}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("parse db.dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DB.MaxConns)
	poolCfg.MinConns = int32(cfg.DB.MinConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return repository.NewPostgresRepository(pool), pool.Close, nil
}

func buildQueue(cfg *config.Config, logger *slog.Logger) (queue.Queue, func(), error) {
	if cfg.Queue.Backend != "redis" {
		q := queue.NewMemoryQueue(queue.MemoryQueueConfig{
			MaxAttempts:     cfg.Queue.MaxAttempts,
			BackoffBase:     cfg.Queue.BackoffBase,
			RetainCompleted: cfg.Queue.RetainCompleted,
			RetainFailed:    cfg.Queue.RetainFailed,
			DedupByJobID:    cfg.Queue.DedupByJobID,
		})
		return q, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	q := queue.NewRedisQueue(rdb, queue.RedisQueueConfig{
		MaxAttempts:     cfg.Queue.MaxAttempts,
		BackoffBase:     cfg.Queue.BackoffBase,
		RetainCompleted: cfg.Queue.RetainCompleted,
		RetainFailed:    cfg.Queue.RetainFailed,
		DedupByJobID:    cfg.Queue.DedupByJobID,
		PollInterval:    cfg.Worker.IdlePollInterval,
	}, logger)
	return q, func() { _ = rdb.Close() }, nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) (notifier.Notifier, error) {
	if cfg.Queue.Backend != "redis" {
		return notifier.NewMemoryNotifier(), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	base := notifier.NewRedisNotifier(rdb, logger)
	return notifier.NewCircuitBreakerNotifier(base, notifier.CircuitBreakerConfig{
		FailureThreshold: uint32(cfg.Redis.NotifierBreakerThreshold),
		Cooldown:         cfg.Redis.NotifierBreakerCooldown,
		HalfOpenMaxCalls: uint32(cfg.Redis.NotifierBreakerHalfOpenMax),
		Timeout:          cfg.Redis.NotifierTimeout,
	}), nil
}
