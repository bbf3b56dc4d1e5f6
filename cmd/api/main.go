package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"riskwatch-lab/internal/api"
	"riskwatch-lab/internal/api/handlers"
	"riskwatch-lab/internal/config"
	"riskwatch-lab/internal/domain/services"
	"riskwatch-lab/internal/infrastructure/cache"
	"riskwatch-lab/internal/infrastructure/database"
	"riskwatch-lab/internal/infrastructure/database/repository"
	"riskwatch-lab/internal/infrastructure/vision"
	"riskwatch-lab/internal/streaming"
	"riskwatch-lab/pkg/logger"
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
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Str("rule_version", cfg.Scoring.Version).
		Msg("starting RiskWatch Lab")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize infrastructure
	db, redisCache, err := initInfrastructure(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize infrastructure")
	}
	defer func() {
		if db != nil {
			db.Close()
		}
		if redisCache != nil {
			redisCache.Close()
		}
	}()

	// Initialize stores. Without a database the service still serves real-time
	// detection and views, backed by an in-memory store.
	var store services.IndicatorStore
	var source services.MessageSource
	if db != nil {
		repos := repository.New(db.Pool())
		store = repos.Indicators
		source = repos.Messages
		log.Info().Msg("repositories initialized with database")
	} else {
		store = repository.NewMemoryStore()
		log.Warn().Msg("running without database - using in-memory indicator store")
	}

	// Initialize streaming infrastructure
	var natsPublisher *streaming.NATSPublisher
	if cfg.NATS.Enabled {
		natsPublisher, err = streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, continuing without distributed streaming")
			natsPublisher = nil
		}
	}

	eventBus := streaming.NewEventBus(natsPublisher, log)
	wsHub := streaming.NewWebSocketHub(log)
	go wsHub.Run(ctx)

	publisher := streaming.NewEventBusPublisher(eventBus, wsHub)

	// Initialize scoring pipeline
	evaluator := services.NewFlagEvaluator(cfg.Flags, log)
	scorer := services.NewScorer(cfg.Scoring, log)
	extractor := services.NewProductExtractor(cfg.Products, log)

	var visionClient services.VisionClient
	if cfg.Vision.Enabled {
		visionClient = vision.NewClient(cfg.Vision, log)
		log.Info().Str("base_url", cfg.Vision.BaseURL).Msg("vision client initialized")
	}

	analyzer := services.NewAnalyzer(evaluator, scorer, extractor, visionClient, cfg.Vision.Timeout, log)

	// Batch scorer needs a message source; without a database there is no
	// backlog to drain.
	var batch *services.BatchScorer
	if source != nil {
		batch = services.NewBatchScorer(cfg.Batch, analyzer, source, store, log)
		batch.SetEventPublisher(publisher)

		if cfg.Batch.Enabled {
			go func() {
				if err := batch.Run(ctx); err != nil && err != context.Canceled {
					log.Error().Err(err).Msg("batch scorer stopped with error")
				}
			}()
		}
	}

	// Initialize handlers and router
	h := handlers.NewHandlers(handlers.Dependencies{
		Analyzer:  analyzer,
		Batch:     batch,
		Store:     store,
		Cache:     redisCache,
		EventBus:  eventBus,
		WSHub:     wsHub,
		Publisher: publisher,
		Logger:    log,
	})

	router := api.NewRouter(*cfg, h, redisCache, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	eventBus.Close()

	log.Info().Msg("shutdown complete")
}

// initInfrastructure initializes database and cache connections
func initInfrastructure(ctx context.Context, cfg *config.Config, log *logger.Logger) (*database.PostgresDB, *cache.RedisCache, error) {
	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to PostgreSQL, continuing without database")
	} else if err := database.Migrate(cfg.Database, log); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	redisCache, err := cache.NewRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to Redis, continuing without cache")
		redisCache = nil
	}

	return db, redisCache, nil
}
