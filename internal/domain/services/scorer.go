package services

import (
	"riskwatch-lab/internal/config"
	"riskwatch-lab/internal/domain/models"
	"riskwatch-lab/pkg/logger"
)

// Scorer turns a flag set into a risk score using the configured rule table.
//
// The default mode evaluates clauses top-to-bottom, first match wins: a score
// is always traceable to exactly one clause ("0.9 because unverified claims"),
// never an opaque combination. The weighted mode sums the scores of every
// matching clause and clamps to [0,1]. Both modes are total: a flag set that
// matches no clause (including the empty set) gets the default score.
type Scorer struct {
	config config.ScoringConfig
	logger *logger.Logger
}

// NewScorer creates a new Scorer from a validated scoring configuration
func NewScorer(cfg config.ScoringConfig, log *logger.Logger) *Scorer {
	if cfg.Mode == "" {
		cfg.Mode = config.ModeFirstMatch
	}
	return &Scorer{
		config: cfg,
		logger: log.WithComponent("scorer"),
	}
}

// RuleVersion identifies the rule table that produced a score. Clause order is
// part of the table's identity; reordering requires a version bump.
func (s *Scorer) RuleVersion() string {
	return s.config.Version
}

// AlertThreshold returns the score at which indicators are published as alerts
func (s *Scorer) AlertThreshold() float64 {
	return s.config.AlertThreshold
}

// Score computes the risk score for a flag set. Pure and deterministic: the
// same flags against the same rule version always produce the same score.
func (s *Scorer) Score(flags models.FlagSet) float64 {
	if s.config.Mode == config.ModeWeighted {
		return s.scoreWeighted(flags)
	}
	return s.scoreFirstMatch(flags)
}

func (s *Scorer) scoreFirstMatch(flags models.FlagSet) float64 {
	for _, clause := range s.config.RuleTable {
		if flags.HasAll(clause.Flags) {
			return clamp(clause.Score, 0, 1)
		}
	}
	return clamp(s.config.DefaultScore, 0, 1)
}

func (s *Scorer) scoreWeighted(flags models.FlagSet) float64 {
	var total float64
	matched := false
	for _, clause := range s.config.RuleTable {
		if flags.HasAll(clause.Flags) {
			total += clause.Score
			matched = true
		}
	}
	if !matched {
		return clamp(s.config.DefaultScore, 0, 1)
	}
	return clamp(total, 0, 1)
}

// Explain returns the index of the clause that decided the score, or -1 for
// the default clause. Only meaningful in first-match mode.
func (s *Scorer) Explain(flags models.FlagSet) int {
	for i, clause := range s.config.RuleTable {
		if flags.HasAll(clause.Flags) {
			return i
		}
	}
	return -1
}

// Confidence derives a response confidence from a score
func (s *Scorer) Confidence(score float64) float64 {
	return clamp(score+0.1, 0, 0.9)
}

// clamp clamps a value between min and max
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
