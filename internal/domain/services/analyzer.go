package services

import (
	"context"
	"time"

	"riskwatch-lab/internal/domain/models"
	"riskwatch-lab/pkg/logger"
)

// VisionClient fetches object-detection labels for stored media. Implemented
// by the vision infrastructure client; nil means image signals are disabled.
type VisionClient interface {
	DetectLabels(ctx context.Context, imageRef string) (models.ImageDetection, error)
}

// IndicatorStore persists risk indicators and serves the aggregate views.
// Upsert is idempotent per message id: re-analyzing a message replaces its
// indicator and mentions rather than accumulating duplicates.
type IndicatorStore interface {
	Upsert(ctx context.Context, indicator *models.RiskIndicator) error
	GetByMessageID(ctx context.Context, messageID string) (*models.RiskIndicator, error)
	TopRisky(ctx context.Context, since time.Time, limit int) ([]*models.RiskIndicator, error)
	TrendingProducts(ctx context.Context, since time.Time, limit int) ([]*models.ProductCount, error)
	ChannelSummaries(ctx context.Context, since time.Time) ([]*models.ChannelSummary, error)
}

// MessageSource lists collected messages that still need scoring under the
// current rule version
type MessageSource interface {
	ListUnscored(ctx context.Context, ruleVersion string, limit int) ([]*models.Message, error)
}

// EventPublisher broadcasts indicators that cross the alert threshold
type EventPublisher interface {
	PublishRiskAlert(ctx context.Context, indicator *models.RiskIndicator) error
}

// Analyzer composes the flag evaluator, scorer and product extractor into the
// full per-message pipeline: evaluate flags, score them, extract mentions,
// derive the categorical level.
type Analyzer struct {
	evaluator *FlagEvaluator
	scorer    *Scorer
	extractor *ProductExtractor
	vision    VisionClient
	visionTTL time.Duration
	logger    *logger.Logger
}

// NewAnalyzer creates an analyzer. vision may be nil, in which case messages
// with an image ref are scored on text signals alone.
func NewAnalyzer(evaluator *FlagEvaluator, scorer *Scorer, extractor *ProductExtractor, vision VisionClient, visionTimeout time.Duration, log *logger.Logger) *Analyzer {
	if visionTimeout <= 0 {
		visionTimeout = 5 * time.Second
	}
	return &Analyzer{
		evaluator: evaluator,
		scorer:    scorer,
		extractor: extractor,
		vision:    vision,
		visionTTL: visionTimeout,
		logger:    log.WithComponent("analyzer"),
	}
}

// RuleVersion returns the rule version stamped on produced indicators
func (a *Analyzer) RuleVersion() string {
	return a.scorer.RuleVersion()
}

// Analyze runs the full pipeline on one message. It never fails on message
// content: missing text, missing image or a degraded vision collaborator all
// produce a valid indicator, with degradations recorded as warnings.
func (a *Analyzer) Analyze(ctx context.Context, m *models.Message) *models.RiskIndicator {
	var warnings []string

	if m.Image == nil && m.ImageRef != "" && a.vision != nil {
		labels, err := a.fetchLabels(ctx, m.ImageRef)
		if err != nil {
			a.logger.Warn().
				Str("message_id", m.ID).
				Err(err).
				Msg("vision detection unavailable, scoring on text signals only")
			warnings = append(warnings, "image_signals_unavailable")
		} else {
			m.Image = labels
		}
	}

	flags := a.evaluator.Evaluate(m)
	score := a.scorer.Score(flags)

	indicator := &models.RiskIndicator{
		MessageID:   m.ID,
		Channel:     m.Channel,
		MessageTS:   m.Timestamp,
		Score:       score,
		RiskLevel:   models.RiskLevelForScore(score),
		Flags:       flags.Names(),
		Mentions:    a.extractor.Extract(m.Text),
		RuleVersion: a.scorer.RuleVersion(),
		AnalyzedAt:  time.Now().UTC(),
		Confidence:  a.scorer.Confidence(score),
		Warnings:    warnings,
	}

	a.logger.Debug().
		Str("message_id", m.ID).
		Str("channel", m.Channel).
		Float64("score", score).
		Str("risk_level", string(indicator.RiskLevel)).
		Strs("flags", indicator.Flags).
		Msg("message analyzed")

	return indicator
}

// DetectRealtime scores ad-hoc text without persisting anything. Used by the
// synchronous detection endpoint.
func (a *Analyzer) DetectRealtime(ctx context.Context, text, channel string) *models.RiskIndicator {
	m := &models.Message{
		ID:        "",
		Channel:   channel,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	return a.Analyze(ctx, m)
}

func (a *Analyzer) fetchLabels(ctx context.Context, imageRef string) (models.ImageDetection, error) {
	ctx, cancel := context.WithTimeout(ctx, a.visionTTL)
	defer cancel()
	return a.vision.DetectLabels(ctx, imageRef)
}
