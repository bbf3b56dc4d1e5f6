package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"riskwatch-lab/internal/config"
	"riskwatch-lab/internal/domain/services"
	"riskwatch-lab/internal/infrastructure/cache"
	"riskwatch-lab/internal/infrastructure/database"
	"riskwatch-lab/internal/infrastructure/database/repository"
	"riskwatch-lab/internal/infrastructure/vision"
	"riskwatch-lab/internal/streaming"
	"riskwatch-lab/pkg/logger"
)

const (
	// Lock settings
	lockTTL     = 5 * time.Minute
	lockKey     = "batch-scorer"
	lockRefresh = 1 * time.Minute

	// Retry settings
	maxRetries     = 3
	baseRetryDelay = 30 * time.Second
	maxRetryDelay  = 5 * time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var log *logger.Logger
	if cfg.App.Environment == "production" {
		log = logger.NewProduction()
	} else {
		log = logger.NewDevelopment()
	}
	log = log.WithComponent("scoring-worker")
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("rule_version", cfg.Scoring.Version).
		Msg("starting RiskWatch Scoring Worker")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The worker needs a database (its whole job is draining the backlog) and
	// Redis (for the distributed lock).
	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer db.Close()

	if err := database.Migrate(cfg.Database, log); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisCache, err := cache.NewRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisCache.Close()

	repos := repository.New(db.Pool())

	// Create worker
	worker := NewScoringWorker(cfg, repos, redisCache, log)

	// Handle shutdown signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := worker.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("worker stopped with error")
			cancel()
		}
	}()

	<-quit
	log.Info().Msg("shutting down scoring worker...")
	cancel()

	time.Sleep(2 * time.Second)
	log.Info().Msg("shutdown complete")
}

// ScoringWorker is a standalone background worker that drains the backlog of
// unscored messages. Multiple replicas coordinate via a Redis lock so only one
// scores at a time.
type ScoringWorker struct {
	config *config.Config
	cache  *cache.RedisCache
	logger *logger.Logger
	batch  *services.BatchScorer
}

// NewScoringWorker creates a new scoring worker
func NewScoringWorker(
	cfg *config.Config,
	repos *repository.Repositories,
	redisCache *cache.RedisCache,
	log *logger.Logger,
) *ScoringWorker {
	evaluator := services.NewFlagEvaluator(cfg.Flags, log)
	scorer := services.NewScorer(cfg.Scoring, log)
	extractor := services.NewProductExtractor(cfg.Products, log)

	var visionClient services.VisionClient
	if cfg.Vision.Enabled {
		visionClient = vision.NewClient(cfg.Vision, log)
	}

	analyzer := services.NewAnalyzer(evaluator, scorer, extractor, visionClient, cfg.Vision.Timeout, log)
	batch := services.NewBatchScorer(cfg.Batch, analyzer, repos.Messages, repos.Indicators, log)

	// Publish alerts even from the worker, so dashboards see batch-scored
	// high-risk messages too.
	if cfg.NATS.Enabled {
		ctx := context.Background()
		natsPublisher, err := streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, alerts disabled")
		} else {
			eventBus := streaming.NewEventBus(natsPublisher, log)
			batch.SetEventPublisher(streaming.NewEventBusPublisher(eventBus, nil))
		}
	}

	return &ScoringWorker{
		config: cfg,
		cache:  redisCache,
		logger: log,
		batch:  batch,
	}
}

// Run starts the worker main loop
func (w *ScoringWorker) Run(ctx context.Context) error {
	interval := w.config.Batch.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	w.logger.Info().
		Dur("interval", interval).
		Int("max_retries", maxRetries).
		Msg("starting scoring worker loop")

	// Run immediately on start
	w.runWithLockAndRetry(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("scoring worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.runWithLockAndRetry(ctx)
		}
	}
}

// runWithLockAndRetry attempts to acquire the lock and run a batch with retry
func (w *ScoringWorker) runWithLockAndRetry(ctx context.Context) {
	acquired, err := w.cache.AcquireLock(ctx, lockKey, lockTTL)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to acquire lock")
		return
	}

	if !acquired {
		w.logger.Debug().Msg("another worker is running, skipping")
		return
	}

	defer func() {
		if err := w.cache.ReleaseLock(ctx, lockKey); err != nil {
			w.logger.Warn().Err(err).Msg("failed to release lock")
		}
	}()

	lockCtx, lockCancel := context.WithCancel(ctx)
	defer lockCancel()
	go w.refreshLock(lockCtx)

	w.runWithRetry(ctx)
}

// refreshLock periodically extends the distributed lock
func (w *ScoringWorker) refreshLock(ctx context.Context) {
	ticker := time.NewTicker(lockRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.cache.Expire(ctx, cache.KeyWorkerLock+lockKey, lockTTL); err != nil {
				w.logger.Warn().Err(err).Msg("failed to refresh lock")
			}
		}
	}
}

// runWithRetry runs a batch with exponential backoff retry
func (w *ScoringWorker) runWithRetry(ctx context.Context) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(attempt)
			w.logger.Info().
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("retrying batch after delay")

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		err := w.runBatch(ctx)
		if err == nil {
			return
		}

		lastErr = err
		w.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", maxRetries).
			Msg("batch run failed")
	}

	w.logger.Error().
		Err(lastErr).
		Int("attempts", maxRetries+1).
		Msg("batch failed after all retries")
}

// runBatch runs a single scoring batch and records the run
func (w *ScoringWorker) runBatch(ctx context.Context) error {
	start := time.Now()
	w.logger.Info().Msg("starting batch run")

	result, err := w.batch.RunOnce(ctx)

	duration := time.Since(start)
	if err != nil {
		w.logger.Error().Err(err).Dur("duration", duration).Msg("batch run failed")
		w.recordRunHistory(ctx, start, duration, 0, 0, err.Error())
		return err
	}

	w.logger.Info().
		Int("scored", result.Scored).
		Int("failed", result.Failed).
		Dur("duration", duration).
		Msg("batch run completed")

	// Cached views are stale after new scores land
	if result.Scored > 0 {
		if err := w.cache.InvalidateViews(ctx); err != nil {
			w.logger.Warn().Err(err).Msg("failed to invalidate cached views")
		}
	}

	w.recordRunHistory(ctx, start, duration, result.Scored, result.Failed, "")
	return nil
}

// recordRunHistory keeps the last 100 runs in Redis for inspection
func (w *ScoringWorker) recordRunHistory(ctx context.Context, startTime time.Time, duration time.Duration, scored, failed int, errorMsg string) {
	historyKey := "worker:history"
	data := fmt.Sprintf("%s|%d|%d|%d|%s",
		startTime.Format(time.RFC3339),
		scored,
		failed,
		duration.Milliseconds(),
		errorMsg,
	)

	if err := w.cache.PushHistory(ctx, historyKey, data, 100); err != nil {
		w.logger.Warn().Err(err).Msg("failed to record run history")
	}
}

// calculateBackoff calculates exponential backoff delay
func calculateBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
