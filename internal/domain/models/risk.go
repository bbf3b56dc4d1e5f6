package models

import (
	"sort"
	"time"
)

// RiskLevel is the categorical view of a risk score
type RiskLevel string

const (
	RiskLevelHigh   RiskLevel = "high"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelLow    RiskLevel = "low"
)

// RiskLevelForScore maps a score in [0,1] to a categorical level
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 0.7:
		return RiskLevelHigh
	case score >= 0.4:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// FlagSet is the outcome of evaluating every registered predicate against a
// message. Only flags that fired are present.
type FlagSet map[string]bool

// Has reports whether the named flag fired
func (f FlagSet) Has(name string) bool {
	return f[name]
}

// HasAll reports whether every named flag fired
func (f FlagSet) HasAll(names []string) bool {
	for _, n := range names {
		if !f[n] {
			return false
		}
	}
	return true
}

// Names returns the fired flags in sorted order for stable storage and output
func (f FlagSet) Names() []string {
	names := make([]string, 0, len(f))
	for n, set := range f {
		if set {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// RiskIndicator is the engine's output for one message: the full flag set, a
// score in [0,1], the extracted product mentions and the rule version that
// produced them. One row per message id; re-scoring replaces the row entirely.
type RiskIndicator struct {
	MessageID   string    `json:"message_id" db:"message_id"`
	Channel     string    `json:"channel" db:"channel"`
	MessageTS   time.Time `json:"message_ts" db:"message_ts"`
	Score       float64   `json:"score" db:"score"`
	RiskLevel   RiskLevel `json:"risk_level" db:"risk_level"`
	Flags       []string  `json:"flags" db:"flags"`
	Mentions    []string  `json:"mentions" db:"-"`
	RuleVersion string    `json:"rule_version" db:"rule_version"`
	AnalyzedAt  time.Time `json:"analyzed_at" db:"analyzed_at"`

	// Confidence is derived for real-time responses and not persisted
	Confidence float64 `json:"confidence,omitempty" db:"-"`

	// Warnings records degraded collaborators (e.g. vision timeout) so
	// score drift is observable. Not persisted.
	Warnings []string `json:"warnings,omitempty" db:"-"`
}

// HasFlag reports whether the indicator carries the named flag
func (r *RiskIndicator) HasFlag(name string) bool {
	for _, f := range r.Flags {
		if f == name {
			return true
		}
	}
	return false
}

// IsHighRisk reports whether the indicator is in the high band
func (r *RiskIndicator) IsHighRisk() bool {
	return r.RiskLevel == RiskLevelHigh
}

// ProductCount is one entry of the trending-products view
type ProductCount struct {
	Product string `json:"product"`
	Count   int64  `json:"count"`
}

// ChannelSummary aggregates indicators per channel over a time window
type ChannelSummary struct {
	Channel       string   `json:"channel"`
	MessageCount  int64    `json:"message_count"`
	HighRiskCount int64    `json:"high_risk_count"`
	AvgScore      float64  `json:"avg_score"`
	TopFlags      []string `json:"top_flags,omitempty"`
}
