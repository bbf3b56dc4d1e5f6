package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"riskwatch-lab/internal/domain/models"
)

// MemoryStore is an in-memory indicator store with the same semantics as the
// PostgreSQL repository. Used when the service runs without a database and in
// tests.
type MemoryStore struct {
	mu         sync.RWMutex
	indicators map[string]*models.RiskIndicator
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		indicators: make(map[string]*models.RiskIndicator),
	}
}

// Upsert stores the indicator, replacing any previous one for the message
func (s *MemoryStore) Upsert(ctx context.Context, ind *models.RiskIndicator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ind
	cp.Flags = append([]string(nil), ind.Flags...)
	cp.Mentions = append([]string(nil), ind.Mentions...)
	s.indicators[ind.MessageID] = &cp
	return nil
}

// GetByMessageID retrieves the indicator for a message
func (s *MemoryStore) GetByMessageID(ctx context.Context, messageID string) (*models.RiskIndicator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ind, ok := s.indicators[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ind
	return &cp, nil
}

// TopRisky returns the highest-scoring indicators posted since the given
// time, ties broken by recency. A zero since means no window.
func (s *MemoryStore) TopRisky(ctx context.Context, since time.Time, limit int) ([]*models.RiskIndicator, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	all := make([]*models.RiskIndicator, 0, len(s.indicators))
	for _, ind := range s.indicators {
		if ind.MessageTS.Before(since) {
			continue
		}
		all = append(all, ind)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].MessageTS.After(all[j].MessageTS)
	})

	if len(all) > limit {
		all = all[:limit]
	}

	out := make([]*models.RiskIndicator, len(all))
	for i, ind := range all {
		cp := *ind
		out[i] = &cp
	}
	return out, nil
}

// TrendingProducts counts mentions in messages posted since the given time
func (s *MemoryStore) TrendingProducts(ctx context.Context, since time.Time, limit int) ([]*models.ProductCount, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	counts := make(map[string]int64)
	for _, ind := range s.indicators {
		if ind.MessageTS.Before(since) {
			continue
		}
		for _, p := range ind.Mentions {
			counts[p]++
		}
	}
	s.mu.RUnlock()

	out := make([]*models.ProductCount, 0, len(counts))
	for product, count := range counts {
		out = append(out, &models.ProductCount{Product: product, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Product < out[j].Product
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ChannelSummaries aggregates indicators per channel since the given time
func (s *MemoryStore) ChannelSummaries(ctx context.Context, since time.Time) ([]*models.ChannelSummary, error) {
	type agg struct {
		count    int64
		highRisk int64
		scoreSum float64
		flags    map[string]int
	}

	s.mu.RLock()
	byChannel := make(map[string]*agg)
	for _, ind := range s.indicators {
		if ind.MessageTS.Before(since) {
			continue
		}
		a, ok := byChannel[ind.Channel]
		if !ok {
			a = &agg{flags: make(map[string]int)}
			byChannel[ind.Channel] = a
		}
		a.count++
		if ind.IsHighRisk() {
			a.highRisk++
		}
		a.scoreSum += ind.Score
		for _, f := range ind.Flags {
			a.flags[f]++
		}
	}
	s.mu.RUnlock()

	out := make([]*models.ChannelSummary, 0, len(byChannel))
	for channel, a := range byChannel {
		out = append(out, &models.ChannelSummary{
			Channel:       channel,
			MessageCount:  a.count,
			HighRiskCount: a.highRisk,
			AvgScore:      a.scoreSum / float64(a.count),
			TopFlags:      topFlags(a.flags, 3),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HighRiskCount != out[j].HighRiskCount {
			return out[i].HighRiskCount > out[j].HighRiskCount
		}
		return out[i].AvgScore > out[j].AvgScore
	})

	return out, nil
}

// Len returns the number of stored indicators
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.indicators)
}

func topFlags(counts map[string]int, limit int) []string {
	type fc struct {
		flag  string
		count int
	}
	all := make([]fc, 0, len(counts))
	for f, c := range counts {
		all = append(all, fc{flag: f, count: c})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].flag < all[j].flag
	})
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]string, len(all))
	for i, e := range all {
		out[i] = e.flag
	}
	return out
}
