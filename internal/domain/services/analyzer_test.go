package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskwatch-lab/internal/domain/models"
)

type fakeVisionClient struct {
	labels models.ImageDetection
	err    error
	calls  int
}

func (f *fakeVisionClient) DetectLabels(ctx context.Context, imageRef string) (models.ImageDetection, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.labels, nil
}

func newTestAnalyzer(vision VisionClient) *Analyzer {
	log := testLogger()
	evaluator := NewFlagEvaluator(testFlagsConfig(), log)
	scorer := NewScorer(testScoringConfig(), log)
	extractor := NewProductExtractor(testProductsConfig(), log)
	return NewAnalyzer(evaluator, scorer, extractor, vision, time.Second, log)
}

func TestAnalyzer_Analyze(t *testing.T) {
	analyzer := newTestAnalyzer(nil)

	m := &models.Message{
		ID:        "msg-1",
		Channel:   "deals",
		Text:      "act now, paracetamol with guaranteed returns",
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	indicator := analyzer.Analyze(context.Background(), m)
	require.NotNil(t, indicator)

	assert.Equal(t, "msg-1", indicator.MessageID)
	assert.Equal(t, "deals", indicator.Channel)
	assert.Equal(t, m.Timestamp, indicator.MessageTS)
	assert.InDelta(t, 0.9, indicator.Score, 1e-9)
	assert.Equal(t, models.RiskLevelHigh, indicator.RiskLevel)
	assert.Equal(t, []string{"contains_urgent_language", "has_unverified_claims"}, indicator.Flags)
	assert.Equal(t, []string{"paracetamol"}, indicator.Mentions)
	assert.Equal(t, "test-v1", indicator.RuleVersion)
	assert.InDelta(t, 0.9, indicator.Confidence, 1e-9)
	assert.Empty(t, indicator.Warnings)
	assert.False(t, indicator.AnalyzedAt.IsZero())
}

func TestAnalyzer_CleanMessageGetsDefaultScore(t *testing.T) {
	analyzer := newTestAnalyzer(nil)

	indicator := analyzer.Analyze(context.Background(), &models.Message{
		ID:   "msg-2",
		Text: "good morning everyone",
	})

	assert.InDelta(t, 0.1, indicator.Score, 1e-9)
	assert.Equal(t, models.RiskLevelLow, indicator.RiskLevel)
	assert.Empty(t, indicator.Flags)
	assert.Empty(t, indicator.Mentions)
}

func TestAnalyzer_FetchesImageLabels(t *testing.T) {
	vision := &fakeVisionClient{labels: models.ImageDetection{"pills": 0.95}}
	analyzer := newTestAnalyzer(vision)

	indicator := analyzer.Analyze(context.Background(), &models.Message{
		ID:       "msg-3",
		Text:     "check the photo",
		ImageRef: "media/abc123.jpg",
	})

	assert.Equal(t, 1, vision.calls)
	assert.Equal(t, []string{"pills_detected"}, indicator.Flags)
	assert.InDelta(t, 0.6, indicator.Score, 1e-9)
	assert.Empty(t, indicator.Warnings)
}

func TestAnalyzer_VisionFailureDegradesToTextOnly(t *testing.T) {
	vision := &fakeVisionClient{err: errors.New("connection refused")}
	analyzer := newTestAnalyzer(vision)

	indicator := analyzer.Analyze(context.Background(), &models.Message{
		ID:       "msg-4",
		Text:     "act now",
		ImageRef: "media/abc123.jpg",
	})

	require.NotNil(t, indicator)
	assert.Equal(t, []string{"contains_urgent_language"}, indicator.Flags)
	assert.InDelta(t, 0.7, indicator.Score, 1e-9)
	assert.Equal(t, []string{"image_signals_unavailable"}, indicator.Warnings)
}

func TestAnalyzer_SkipsVisionWhenLabelsPresent(t *testing.T) {
	vision := &fakeVisionClient{labels: models.ImageDetection{"cash": 0.99}}
	analyzer := newTestAnalyzer(vision)

	indicator := analyzer.Analyze(context.Background(), &models.Message{
		ID:       "msg-5",
		Text:     "photo attached",
		ImageRef: "media/abc123.jpg",
		Image:    models.ImageDetection{"pills": 0.95},
	})

	assert.Equal(t, 0, vision.calls)
	assert.Equal(t, []string{"pills_detected"}, indicator.Flags)
}

func TestAnalyzer_NilVisionClient(t *testing.T) {
	analyzer := newTestAnalyzer(nil)

	indicator := analyzer.Analyze(context.Background(), &models.Message{
		ID:       "msg-6",
		Text:     "hurry",
		ImageRef: "media/abc123.jpg",
	})

	assert.Equal(t, []string{"contains_urgent_language"}, indicator.Flags)
	assert.Empty(t, indicator.Warnings)
}

func TestAnalyzer_DetectRealtime(t *testing.T) {
	analyzer := newTestAnalyzer(nil)

	indicator := analyzer.DetectRealtime(context.Background(), "miracle cure, act now", "spam-watch")

	assert.Empty(t, indicator.MessageID)
	assert.Equal(t, "spam-watch", indicator.Channel)
	assert.InDelta(t, 0.9, indicator.Score, 1e-9)
	assert.Equal(t, models.RiskLevelHigh, indicator.RiskLevel)
}
