package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"riskwatch-lab/internal/domain/models"
)

// ErrNotFound is returned when no indicator exists for a message id
var ErrNotFound = errors.New("indicator not found")

// IndicatorRepository persists risk indicators and their product mentions
type IndicatorRepository struct {
	pool *pgxpool.Pool
}

// NewIndicatorRepository creates a new indicator repository
func NewIndicatorRepository(pool *pgxpool.Pool) *IndicatorRepository {
	return &IndicatorRepository{pool: pool}
}

// Upsert writes an indicator keyed by message id. Re-scoring a message
// replaces its row and its mentions wholesale, so the table always reflects
// the most recent analysis and never accumulates duplicates.
func (r *IndicatorRepository) Upsert(ctx context.Context, ind *models.RiskIndicator) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO risk_indicators (
			message_id, channel, message_ts, score, risk_level,
			flags, rule_version, analyzed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id) DO UPDATE SET
			channel = EXCLUDED.channel,
			message_ts = EXCLUDED.message_ts,
			score = EXCLUDED.score,
			risk_level = EXCLUDED.risk_level,
			flags = EXCLUDED.flags,
			rule_version = EXCLUDED.rule_version,
			analyzed_at = EXCLUDED.analyzed_at`

	_, err = tx.Exec(ctx, query,
		ind.MessageID, ind.Channel, ind.MessageTS, ind.Score, ind.RiskLevel,
		ind.Flags, ind.RuleVersion, ind.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert indicator: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM product_mentions WHERE message_id = $1`, ind.MessageID); err != nil {
		return fmt.Errorf("failed to clear product mentions: %w", err)
	}
	for _, product := range ind.Mentions {
		_, err := tx.Exec(ctx,
			`INSERT INTO product_mentions (message_id, product) VALUES ($1, $2)`,
			ind.MessageID, product,
		)
		if err != nil {
			return fmt.Errorf("failed to insert product mention: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByMessageID retrieves the indicator for a message, with its mentions
func (r *IndicatorRepository) GetByMessageID(ctx context.Context, messageID string) (*models.RiskIndicator, error) {
	query := `
		SELECT message_id, channel, message_ts, score, risk_level,
			   flags, rule_version, analyzed_at
		FROM risk_indicators
		WHERE message_id = $1`

	ind := &models.RiskIndicator{}
	err := r.pool.QueryRow(ctx, query, messageID).Scan(
		&ind.MessageID, &ind.Channel, &ind.MessageTS, &ind.Score, &ind.RiskLevel,
		&ind.Flags, &ind.RuleVersion, &ind.AnalyzedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get indicator: %w", err)
	}

	mentions, err := r.mentionsFor(ctx, messageID)
	if err != nil {
		return nil, err
	}
	ind.Mentions = mentions

	return ind, nil
}

// TopRisky returns the highest-scoring indicators for messages posted since
// the given time. A zero since means no window. Ties break toward the most
// recent message so the view stays stable across calls.
func (r *IndicatorRepository) TopRisky(ctx context.Context, since time.Time, limit int) ([]*models.RiskIndicator, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT message_id, channel, message_ts, score, risk_level,
			   flags, rule_version, analyzed_at
		FROM risk_indicators
		WHERE message_ts >= $1
		ORDER BY score DESC, message_ts DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top indicators: %w", err)
	}
	defer rows.Close()

	return scanIndicators(rows)
}

// TrendingProducts counts product mentions in messages posted since the given
// time, most mentioned first
func (r *IndicatorRepository) TrendingProducts(ctx context.Context, since time.Time, limit int) ([]*models.ProductCount, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT pm.product, COUNT(*) AS mentions
		FROM product_mentions pm
		JOIN risk_indicators ri ON ri.message_id = pm.message_id
		WHERE ri.message_ts >= $1
		GROUP BY pm.product
		ORDER BY mentions DESC, pm.product
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trending products: %w", err)
	}
	defer rows.Close()

	var counts []*models.ProductCount
	for rows.Next() {
		pc := &models.ProductCount{}
		if err := rows.Scan(&pc.Product, &pc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan product count: %w", err)
		}
		counts = append(counts, pc)
	}

	return counts, rows.Err()
}

// ChannelSummaries aggregates indicators per channel since the given time
func (r *IndicatorRepository) ChannelSummaries(ctx context.Context, since time.Time) ([]*models.ChannelSummary, error) {
	query := `
		SELECT channel,
			   COUNT(*) AS message_count,
			   COUNT(*) FILTER (WHERE risk_level = 'high') AS high_risk_count,
			   AVG(score) AS avg_score
		FROM risk_indicators
		WHERE message_ts >= $1
		GROUP BY channel
		ORDER BY high_risk_count DESC, avg_score DESC`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*models.ChannelSummary
	for rows.Next() {
		cs := &models.ChannelSummary{}
		if err := rows.Scan(&cs.Channel, &cs.MessageCount, &cs.HighRiskCount, &cs.AvgScore); err != nil {
			return nil, fmt.Errorf("failed to scan channel summary: %w", err)
		}
		summaries = append(summaries, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, cs := range summaries {
		topFlags, err := r.topFlagsFor(ctx, cs.Channel, since)
		if err != nil {
			return nil, err
		}
		cs.TopFlags = topFlags
	}

	return summaries, nil
}

// topFlagsFor returns the three most frequent flags in a channel's window
func (r *IndicatorRepository) topFlagsFor(ctx context.Context, channel string, since time.Time) ([]string, error) {
	query := `
		SELECT flag
		FROM risk_indicators, unnest(flags) AS flag
		WHERE channel = $1 AND message_ts >= $2
		GROUP BY flag
		ORDER BY COUNT(*) DESC, flag
		LIMIT 3`

	rows, err := r.pool.Query(ctx, query, channel, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query top flags: %w", err)
	}
	defer rows.Close()

	var flags []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("failed to scan flag: %w", err)
		}
		flags = append(flags, f)
	}

	return flags, rows.Err()
}

func (r *IndicatorRepository) mentionsFor(ctx context.Context, messageID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT product FROM product_mentions WHERE message_id = $1 ORDER BY id`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query product mentions: %w", err)
	}
	defer rows.Close()

	var mentions []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan product mention: %w", err)
		}
		mentions = append(mentions, p)
	}

	return mentions, rows.Err()
}

func scanIndicators(rows pgx.Rows) ([]*models.RiskIndicator, error) {
	var indicators []*models.RiskIndicator
	for rows.Next() {
		ind := &models.RiskIndicator{}
		err := rows.Scan(
			&ind.MessageID, &ind.Channel, &ind.MessageTS, &ind.Score, &ind.RiskLevel,
			&ind.Flags, &ind.RuleVersion, &ind.AnalyzedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan indicator: %w", err)
		}
		indicators = append(indicators, ind)
	}

	return indicators, rows.Err()
}
