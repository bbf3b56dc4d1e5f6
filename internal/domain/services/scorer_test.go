package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"riskwatch-lab/internal/config"
	"riskwatch-lab/internal/domain/models"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		Version:        "test-v1",
		Mode:           config.ModeFirstMatch,
		DefaultScore:   0.1,
		AlertThreshold: 0.7,
		RuleTable: []config.RuleClause{
			{Flags: []string{"has_unverified_claims"}, Score: 0.9},
			{Flags: []string{"unregistered_offer"}, Score: 0.85},
			{Flags: []string{"contains_urgent_language"}, Score: 0.7},
			{Flags: []string{"pills_detected"}, Score: 0.6},
		},
	}
}

func TestScorer_FirstMatch(t *testing.T) {
	scorer := NewScorer(testScoringConfig(), testLogger())

	tests := []struct {
		name     string
		flags    models.FlagSet
		expected float64
	}{
		{
			name:     "no flags gets the default score",
			flags:    models.FlagSet{},
			expected: 0.1,
		},
		{
			name:     "single clause match",
			flags:    models.FlagSet{"contains_urgent_language": true},
			expected: 0.7,
		},
		{
			name: "earlier clause wins over later ones",
			flags: models.FlagSet{
				"contains_urgent_language": true,
				"pills_detected":           true,
			},
			expected: 0.7,
		},
		{
			name: "most severe clause first",
			flags: models.FlagSet{
				"has_unverified_claims":    true,
				"contains_urgent_language": true,
			},
			expected: 0.9,
		},
		{
			name:     "unknown flags match no clause",
			flags:    models.FlagSet{"some_future_flag": true},
			expected: 0.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, scorer.Score(tt.flags), 1e-9)
		})
	}
}

func TestScorer_Weighted(t *testing.T) {
	cfg := testScoringConfig()
	cfg.Mode = config.ModeWeighted
	scorer := NewScorer(cfg, testLogger())

	t.Run("sums matching clauses", func(t *testing.T) {
		score := scorer.Score(models.FlagSet{
			"contains_urgent_language": true,
			"pills_detected":           true,
		})
		assert.InDelta(t, 1.0, score, 1e-9) // 0.7 + 0.6 clamped
	})

	t.Run("single match is not clamped", func(t *testing.T) {
		score := scorer.Score(models.FlagSet{"pills_detected": true})
		assert.InDelta(t, 0.6, score, 1e-9)
	})

	t.Run("no match falls back to default", func(t *testing.T) {
		score := scorer.Score(models.FlagSet{})
		assert.InDelta(t, 0.1, score, 1e-9)
	})
}

func TestScorer_MultiFlagClause(t *testing.T) {
	cfg := config.ScoringConfig{
		Version:      "test-v1",
		DefaultScore: 0.2,
		RuleTable: []config.RuleClause{
			{Flags: []string{"contains_urgent_language", "pills_detected"}, Score: 0.95},
			{Flags: []string{"contains_urgent_language"}, Score: 0.7},
		},
	}
	scorer := NewScorer(cfg, testLogger())

	t.Run("clause requires every flag", func(t *testing.T) {
		score := scorer.Score(models.FlagSet{"contains_urgent_language": true})
		assert.InDelta(t, 0.7, score, 1e-9)
	})

	t.Run("conjunction matches when all present", func(t *testing.T) {
		score := scorer.Score(models.FlagSet{
			"contains_urgent_language": true,
			"pills_detected":           true,
		})
		assert.InDelta(t, 0.95, score, 1e-9)
	})
}

func TestScorer_Explain(t *testing.T) {
	scorer := NewScorer(testScoringConfig(), testLogger())

	assert.Equal(t, 0, scorer.Explain(models.FlagSet{"has_unverified_claims": true}))
	assert.Equal(t, 2, scorer.Explain(models.FlagSet{"contains_urgent_language": true}))
	assert.Equal(t, -1, scorer.Explain(models.FlagSet{}))
}

func TestScorer_Confidence(t *testing.T) {
	scorer := NewScorer(testScoringConfig(), testLogger())

	assert.InDelta(t, 0.2, scorer.Confidence(0.1), 1e-9)
	assert.InDelta(t, 0.8, scorer.Confidence(0.7), 1e-9)
	assert.InDelta(t, 0.9, scorer.Confidence(0.9), 1e-9) // capped
}

func TestScorer_DefaultsToFirstMatch(t *testing.T) {
	cfg := testScoringConfig()
	cfg.Mode = ""
	scorer := NewScorer(cfg, testLogger())

	score := scorer.Score(models.FlagSet{
		"contains_urgent_language": true,
		"pills_detected":           true,
	})
	assert.InDelta(t, 0.7, score, 1e-9)
}

func TestRiskLevelForScore(t *testing.T) {
	assert.Equal(t, models.RiskLevelHigh, models.RiskLevelForScore(0.9))
	assert.Equal(t, models.RiskLevelHigh, models.RiskLevelForScore(0.7))
	assert.Equal(t, models.RiskLevelMedium, models.RiskLevelForScore(0.69))
	assert.Equal(t, models.RiskLevelMedium, models.RiskLevelForScore(0.4))
	assert.Equal(t, models.RiskLevelLow, models.RiskLevelForScore(0.39))
	assert.Equal(t, models.RiskLevelLow, models.RiskLevelForScore(0))
}
