package services

import (
	"sort"
	"strings"

	"riskwatch-lab/internal/config"
	"riskwatch-lab/pkg/logger"
)

// ProductExtractor scans message text against a dictionary mapping surface
// forms (including common misspellings and aliases) to canonical product
// names.
//
// Matching is case-insensitive substring matching. That can false-positive on
// surface forms embedded in longer tokens; the dictionary's own term
// boundaries are the accepted tradeoff for catching run-together and
// punctuation-glued mentions.
type ProductExtractor struct {
	entries []dictEntry
	logger  *logger.Logger
}

type dictEntry struct {
	surface   string
	canonical string
}

// NewProductExtractor creates an extractor from the configured dictionary
func NewProductExtractor(cfg config.ProductsConfig, log *logger.Logger) *ProductExtractor {
	entries := make([]dictEntry, 0, len(cfg.Dictionary))
	for surface, canonical := range cfg.Dictionary {
		entries = append(entries, dictEntry{
			surface:   strings.ToLower(surface),
			canonical: canonical,
		})
	}
	// Stable iteration order regardless of map order
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].surface < entries[j].surface
	})

	return &ProductExtractor{
		entries: entries,
		logger:  log.WithComponent("product-extractor"),
	}
}

// Extract returns the canonical names mentioned in text, ordered by first
// occurrence, with each canonical name reported at most once per message.
func (p *ProductExtractor) Extract(text string) []string {
	if text == "" || len(p.entries) == 0 {
		return nil
	}
	lowered := strings.ToLower(text)

	type hit struct {
		pos       int
		canonical string
	}
	var hits []hit
	for _, e := range p.entries {
		if pos := strings.Index(lowered, e.surface); pos >= 0 {
			hits = append(hits, hit{pos: pos, canonical: e.canonical})
		}
	}
	if len(hits) == 0 {
		return nil
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[string]bool, len(hits))
	mentions := make([]string, 0, len(hits))
	for _, h := range hits {
		if seen[h.canonical] {
			continue
		}
		seen[h.canonical] = true
		mentions = append(mentions, h.canonical)
	}
	return mentions
}

// DictionarySize returns the number of surface forms loaded
func (p *ProductExtractor) DictionarySize() int {
	return len(p.entries)
}
