package services

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"riskwatch-lab/internal/config"
	"riskwatch-lab/internal/domain/models"
	"riskwatch-lab/pkg/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zerolog.Nop()}
}

func testFlagsConfig() config.FlagsConfig {
	return config.FlagsConfig{
		Terms: map[string][]string{
			"contains_urgent_language": {"limited stock", "act now", "hurry"},
			"has_unverified_claims":    {"guaranteed returns", "miracle cure"},
		},
		ImageThresholds: map[string]float64{
			"pills": 0.9,
		},
	}
}

func TestFlagEvaluator_Evaluate(t *testing.T) {
	evaluator := NewFlagEvaluator(testFlagsConfig(), testLogger())

	tests := []struct {
		name     string
		message  *models.Message
		expected []string
	}{
		{
			name:     "no signals",
			message:  &models.Message{Text: "hello there"},
			expected: nil,
		},
		{
			name:     "urgent language matches case-insensitively",
			message:  &models.Message{Text: "LIMITED STOCK available, buy today"},
			expected: []string{"contains_urgent_language"},
		},
		{
			name:     "multiple text flags fire independently",
			message:  &models.Message{Text: "act now for guaranteed returns"},
			expected: []string{"contains_urgent_language", "has_unverified_claims"},
		},
		{
			name: "image flag fires at the cutoff",
			message: &models.Message{
				Text:  "check this out",
				Image: models.ImageDetection{"pills": 0.9},
			},
			expected: []string{"pills_detected"},
		},
		{
			name: "image flag does not fire below the cutoff",
			message: &models.Message{
				Text:  "check this out",
				Image: models.ImageDetection{"pills": 0.89},
			},
			expected: nil,
		},
		{
			name: "text and image flags combine",
			message: &models.Message{
				Text:  "hurry, selling out",
				Image: models.ImageDetection{"pills": 0.95},
			},
			expected: []string{"contains_urgent_language", "pills_detected"},
		},
		{
			name:     "empty text",
			message:  &models.Message{Text: ""},
			expected: nil,
		},
		{
			name:     "nil message",
			message:  nil,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := evaluator.Evaluate(tt.message)
			if tt.expected == nil {
				assert.Empty(t, set.Names())
			} else {
				assert.Equal(t, tt.expected, set.Names())
			}
		})
	}
}

func TestFlagEvaluator_Register(t *testing.T) {
	evaluator := NewFlagEvaluator(config.FlagsConfig{}, testLogger())
	assert.Empty(t, evaluator.FlagNames())

	evaluator.Register("always_on", func(m *models.Message) bool { return true })

	set := evaluator.Evaluate(&models.Message{Text: "anything"})
	assert.True(t, set.Has("always_on"))
	assert.Equal(t, []string{"always_on"}, evaluator.FlagNames())
}

func TestFlagEvaluator_DeterministicRegistration(t *testing.T) {
	// Map iteration order must not leak into the registered order
	for i := 0; i < 5; i++ {
		evaluator := NewFlagEvaluator(testFlagsConfig(), testLogger())
		assert.Equal(t, []string{
			"contains_urgent_language",
			"has_unverified_claims",
			"pills_detected",
		}, evaluator.FlagNames())
	}
}

func TestFlagSet_HasAll(t *testing.T) {
	set := models.FlagSet{"a": true, "b": true}

	assert.True(t, set.HasAll([]string{"a"}))
	assert.True(t, set.HasAll([]string{"a", "b"}))
	assert.True(t, set.HasAll(nil))
	assert.False(t, set.HasAll([]string{"a", "c"}))
}
