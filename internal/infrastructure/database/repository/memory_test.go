package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskwatch-lab/internal/domain/models"
)

func indicatorAt(id, channel string, score float64, ts time.Time) *models.RiskIndicator {
	return &models.RiskIndicator{
		MessageID:   id,
		Channel:     channel,
		MessageTS:   ts,
		Score:       score,
		RiskLevel:   models.RiskLevelForScore(score),
		RuleVersion: "test-v1",
		AnalyzedAt:  time.Now().UTC(),
	}
}

func TestMemoryStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	first := indicatorAt("m1", "deals", 0.7, ts)
	first.Flags = []string{"contains_urgent_language"}
	first.Mentions = []string{"paracetamol"}
	require.NoError(t, store.Upsert(ctx, first))
	assert.Equal(t, 1, store.Len())

	second := indicatorAt("m1", "deals", 0.9, ts)
	second.Flags = []string{"has_unverified_claims"}
	second.Mentions = []string{"ibuprofen"}
	require.NoError(t, store.Upsert(ctx, second))
	assert.Equal(t, 1, store.Len())

	got, err := store.GetByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, got.Score, 1e-9)
	assert.Equal(t, []string{"has_unverified_claims"}, got.Flags)
	assert.Equal(t, []string{"ibuprofen"}, got.Mentions)
}

func TestMemoryStore_UpsertCopiesInput(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	ind := indicatorAt("m1", "deals", 0.5, time.Now())
	ind.Flags = []string{"a"}
	require.NoError(t, store.Upsert(ctx, ind))

	// Mutating the caller's slice must not leak into the store
	ind.Flags[0] = "b"

	got, err := store.GetByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Flags)
}

func TestMemoryStore_MentionOrderPreserved(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	ind := indicatorAt("m1", "meds", 0.6, time.Now())
	ind.Mentions = []string{"zolpidem", "alprazolam", "ibuprofen"}
	require.NoError(t, store.Upsert(ctx, ind))

	// First-occurrence order, not alphabetical
	got, err := store.GetByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"zolpidem", "alprazolam", "ibuprofen"}, got.Mentions)
}

func TestMemoryStore_GetByMessageID_NotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetByMessageID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_TopRisky(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, indicatorAt("low", "a", 0.1, base)))
	require.NoError(t, store.Upsert(ctx, indicatorAt("high", "a", 0.9, base)))
	require.NoError(t, store.Upsert(ctx, indicatorAt("mid", "a", 0.5, base)))

	// Same score, newer message wins the tie
	require.NoError(t, store.Upsert(ctx, indicatorAt("tie-old", "a", 0.7, base.Add(time.Hour))))
	require.NoError(t, store.Upsert(ctx, indicatorAt("tie-new", "a", 0.7, base.Add(2*time.Hour))))

	top, err := store.TopRisky(ctx, time.Time{}, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "high", top[0].MessageID)
	assert.Equal(t, "tie-new", top[1].MessageID)
	assert.Equal(t, "tie-old", top[2].MessageID)
}

func TestMemoryStore_TopRisky_Window(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, indicatorAt("old", "a", 0.9, base)))
	require.NoError(t, store.Upsert(ctx, indicatorAt("new", "a", 0.5, base.Add(2*time.Hour))))

	top, err := store.TopRisky(ctx, base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "new", top[0].MessageID)
}

func TestMemoryStore_TopRisky_DefaultLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 25; i++ {
		ts := time.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Upsert(ctx, indicatorAt(string(rune('a'+i)), "c", 0.5, ts)))
	}

	top, err := store.TopRisky(ctx, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, top, 20)
}

func TestMemoryStore_TrendingProducts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	recent1 := indicatorAt("m1", "meds", 0.6, now.Add(-time.Hour))
	recent1.Mentions = []string{"paracetamol", "ibuprofen"}
	recent2 := indicatorAt("m2", "meds", 0.6, now.Add(-2*time.Hour))
	recent2.Mentions = []string{"paracetamol"}
	old := indicatorAt("m3", "meds", 0.6, now.Add(-48*time.Hour))
	old.Mentions = []string{"sildenafil"}

	require.NoError(t, store.Upsert(ctx, recent1))
	require.NoError(t, store.Upsert(ctx, recent2))
	require.NoError(t, store.Upsert(ctx, old))

	trending, err := store.TrendingProducts(ctx, now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, trending, 2)
	assert.Equal(t, "paracetamol", trending[0].Product)
	assert.Equal(t, int64(2), trending[0].Count)
	assert.Equal(t, "ibuprofen", trending[1].Product)
	assert.Equal(t, int64(1), trending[1].Count)
}

func TestMemoryStore_TrendingProducts_TieBrokenByName(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	a := indicatorAt("m1", "meds", 0.6, now)
	a.Mentions = []string{"zolpidem", "alprazolam"}
	require.NoError(t, store.Upsert(ctx, a))

	trending, err := store.TrendingProducts(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, trending, 2)
	assert.Equal(t, "alprazolam", trending[0].Product)
	assert.Equal(t, "zolpidem", trending[1].Product)
}

func TestMemoryStore_ChannelSummaries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	h1 := indicatorAt("m1", "hot", 0.9, now)
	h1.Flags = []string{"has_unverified_claims", "contains_urgent_language"}
	h2 := indicatorAt("m2", "hot", 0.7, now)
	h2.Flags = []string{"contains_urgent_language"}
	q1 := indicatorAt("m3", "quiet", 0.1, now)
	old := indicatorAt("m4", "hot", 0.9, now.Add(-48*time.Hour))

	require.NoError(t, store.Upsert(ctx, h1))
	require.NoError(t, store.Upsert(ctx, h2))
	require.NoError(t, store.Upsert(ctx, q1))
	require.NoError(t, store.Upsert(ctx, old))

	summaries, err := store.ChannelSummaries(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	hot := summaries[0]
	assert.Equal(t, "hot", hot.Channel)
	assert.Equal(t, int64(2), hot.MessageCount)
	assert.Equal(t, int64(2), hot.HighRiskCount)
	assert.InDelta(t, 0.8, hot.AvgScore, 1e-9)
	assert.Equal(t, []string{"contains_urgent_language", "has_unverified_claims"}, hot.TopFlags)

	quiet := summaries[1]
	assert.Equal(t, "quiet", quiet.Channel)
	assert.Equal(t, int64(1), quiet.MessageCount)
	assert.Equal(t, int64(0), quiet.HighRiskCount)
}

func TestTopFlags(t *testing.T) {
	counts := map[string]int{"a": 5, "b": 5, "c": 2, "d": 1}

	assert.Equal(t, []string{"a", "b", "c"}, topFlags(counts, 3))
	assert.Equal(t, []string{"a", "b"}, topFlags(counts, 2))
	assert.Empty(t, topFlags(map[string]int{}, 3))
}
