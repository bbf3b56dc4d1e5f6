package services

import (
	"context"
	"sync"
	"time"

	"riskwatch-lab/internal/config"
	"riskwatch-lab/internal/domain/models"
	"riskwatch-lab/pkg/logger"
)

// BatchScorer drains the backlog of unscored messages: messages with no
// indicator yet, plus messages whose indicator was produced by an older rule
// version. Each message is analyzed and upserted independently so one bad
// message never stalls the batch.
type BatchScorer struct {
	config    config.BatchConfig
	analyzer  *Analyzer
	source    MessageSource
	store     IndicatorStore
	publisher EventPublisher
	logger    *logger.Logger

	mu        sync.RWMutex
	isRunning bool
	lastRun   time.Time
	total     int64
}

// NewBatchScorer creates a new BatchScorer
func NewBatchScorer(
	cfg config.BatchConfig,
	analyzer *Analyzer,
	source MessageSource,
	store IndicatorStore,
	log *logger.Logger,
) *BatchScorer {
	return &BatchScorer{
		config:   cfg,
		analyzer: analyzer,
		source:   source,
		store:    store,
		logger:   log.WithComponent("batch-scorer"),
	}
}

// SetEventPublisher sets the publisher for above-threshold alerts
func (b *BatchScorer) SetEventPublisher(publisher EventPublisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publisher = publisher
	b.logger.Info().Msg("event publisher configured")
}

// Run starts the periodic scoring loop
func (b *BatchScorer) Run(ctx context.Context) error {
	if !b.config.Enabled {
		b.logger.Info().Msg("batch scoring is disabled")
		return nil
	}

	b.logger.Info().
		Dur("initial_delay", b.config.InitialDelay).
		Dur("interval", b.config.Interval).
		Int("worker_pool_size", b.config.WorkerPoolSize).
		Msg("starting batch scoring loop")

	if b.config.InitialDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.config.InitialDelay):
		}
	}

	// Run immediately on start
	if _, err := b.RunOnce(ctx); err != nil {
		b.logger.Error().Err(err).Msg("initial batch run failed")
	}

	interval := b.config.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("batch scoring loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := b.RunOnce(ctx); err != nil {
				b.logger.Error().Err(err).Msg("batch run failed")
			}
		}
	}
}

// RunOnce scores one chunk of the backlog and returns what happened
func (b *BatchScorer) RunOnce(ctx context.Context) (*BatchResult, error) {
	b.mu.Lock()
	if b.isRunning {
		b.mu.Unlock()
		b.logger.Warn().Msg("batch run already in progress, skipping")
		return &BatchResult{Skipped: true}, nil
	}
	b.isRunning = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.isRunning = false
		b.lastRun = time.Now()
		b.mu.Unlock()
	}()

	start := time.Now()
	result := &BatchResult{RuleVersion: b.analyzer.RuleVersion(), StartedAt: start}

	chunkSize := b.config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 500
	}

	messages, err := b.source.ListUnscored(ctx, b.analyzer.RuleVersion(), chunkSize)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	b.logger.Info().Int("messages", len(messages)).Msg("starting batch scoring run")

	workerCount := b.config.WorkerPoolSize
	if workerCount <= 0 {
		workerCount = 5
	}

	jobs := make(chan *models.Message, len(messages))
	results := make(chan scoreOutcome, len(messages))

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				results <- b.scoreMessage(ctx, m)
			}
		}()
	}

	for _, m := range messages {
		jobs <- m
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for outcome := range results {
		if outcome.err != nil {
			result.Failed++
			result.FailedIDs = append(result.FailedIDs, outcome.messageID)
		} else {
			result.Scored++
		}
	}

	result.Duration = time.Since(start)

	b.mu.Lock()
	b.total += int64(result.Scored)
	b.mu.Unlock()

	b.logger.Info().
		Int("scored", result.Scored).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("batch scoring run completed")

	return result, nil
}

type scoreOutcome struct {
	messageID string
	err       error
}

// scoreMessage analyzes and persists one message. Storage failure is the only
// failure mode; analysis itself always produces an indicator.
func (b *BatchScorer) scoreMessage(ctx context.Context, m *models.Message) scoreOutcome {
	indicator := b.analyzer.Analyze(ctx, m)

	if err := b.store.Upsert(ctx, indicator); err != nil {
		b.logger.Warn().Err(err).Str("message_id", m.ID).Msg("failed to store indicator")
		return scoreOutcome{messageID: m.ID, err: err}
	}

	// SetEventPublisher may race a running batch, so read under the lock
	b.mu.RLock()
	publisher := b.publisher
	b.mu.RUnlock()

	if publisher != nil && indicator.Score >= b.analyzer.scorer.AlertThreshold() {
		if err := publisher.PublishRiskAlert(ctx, indicator); err != nil {
			b.logger.Debug().Err(err).Str("message_id", m.ID).Msg("failed to publish risk alert")
		}
	}

	return scoreOutcome{messageID: m.ID}
}

// Stats returns batch scorer statistics
func (b *BatchScorer) Stats() BatchStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BatchStats{
		IsRunning:   b.isRunning,
		LastRun:     b.lastRun,
		TotalScored: b.total,
	}
}

// BatchStats holds batch scorer statistics
type BatchStats struct {
	IsRunning   bool      `json:"is_running"`
	LastRun     time.Time `json:"last_run"`
	TotalScored int64     `json:"total_scored"`
}

// BatchResult holds the outcome of one scoring run
type BatchResult struct {
	RuleVersion string        `json:"rule_version"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Scored      int           `json:"scored"`
	Failed      int           `json:"failed"`
	FailedIDs   []string      `json:"failed_ids,omitempty"`
	Skipped     bool          `json:"skipped,omitempty"`
}
