package services

import (
	"sort"
	"strings"

	"riskwatch-lab/internal/config"
	"riskwatch-lab/internal/domain/models"
	"riskwatch-lab/pkg/logger"
)

// FlagPredicate is a pure function of a message's fields. Predicates never
// depend on other flags or on prior evaluations.
type FlagPredicate func(m *models.Message) bool

type registeredFlag struct {
	name      string
	predicate FlagPredicate
}

// FlagEvaluator evaluates a registry of independent predicates against a
// message. Every predicate is always run; there is no short-circuiting, so the
// scorer always sees the complete flag set.
type FlagEvaluator struct {
	flags  []registeredFlag
	logger *logger.Logger
}

// NewFlagEvaluator builds an evaluator from the configured term lists and
// image thresholds. Text flags match case-insensitive substrings; image flags
// fire as "<label>_detected" when the label's confidence meets its cutoff.
func NewFlagEvaluator(cfg config.FlagsConfig, log *logger.Logger) *FlagEvaluator {
	e := &FlagEvaluator{logger: log.WithComponent("flag-evaluator")}

	// Deterministic registration order for stable logs
	names := make([]string, 0, len(cfg.Terms))
	for name := range cfg.Terms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e.Register(name, termsPredicate(cfg.Terms[name]))
	}

	labels := make([]string, 0, len(cfg.ImageThresholds))
	for label := range cfg.ImageThresholds {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		e.Register(label+"_detected", imagePredicate(label, cfg.ImageThresholds[label]))
	}

	e.logger.Info().Int("flags", len(e.flags)).Msg("flag predicates registered")
	return e
}

// Register adds a named predicate. New flags are added by registering a
// predicate, not by branching logic.
func (e *FlagEvaluator) Register(name string, predicate FlagPredicate) {
	e.flags = append(e.flags, registeredFlag{name: name, predicate: predicate})
}

// FlagNames returns every registered flag name in registration order
func (e *FlagEvaluator) FlagNames() []string {
	names := make([]string, len(e.flags))
	for i, f := range e.flags {
		names[i] = f.name
	}
	return names
}

// Evaluate runs every registered predicate against the message. A nil message
// or empty text is not an error; text predicates simply don't fire.
func (e *FlagEvaluator) Evaluate(m *models.Message) models.FlagSet {
	set := make(models.FlagSet, len(e.flags))
	if m == nil {
		return set
	}
	for _, f := range e.flags {
		if f.predicate(m) {
			set[f.name] = true
		}
	}
	return set
}

// termsPredicate fires when any term occurs in the message text,
// case-insensitively
func termsPredicate(terms []string) FlagPredicate {
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}
	return func(m *models.Message) bool {
		if !m.HasText() {
			return false
		}
		text := strings.ToLower(m.Text)
		for _, term := range lowered {
			if strings.Contains(text, term) {
				return true
			}
		}
		return false
	}
}

// imagePredicate fires when the label's detection confidence meets the cutoff
func imagePredicate(label string, cutoff float64) FlagPredicate {
	return func(m *models.Message) bool {
		if m.Image == nil {
			return false
		}
		confidence, ok := m.Image[label]
		return ok && confidence >= cutoff
	}
}
