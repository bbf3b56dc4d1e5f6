package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"riskwatch-lab/internal/domain/models"
)

// MessageRepository reads collected messages. The scoring engine treats the
// messages table as read-only apart from Insert, which exists for ingestion
// tooling and tests.
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Insert stores a collected message
func (r *MessageRepository) Insert(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO messages (id, channel, text, posted_at, image_ref, image_labels)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.Channel, m.Text, m.Timestamp, nullable(m.ImageRef), m.Image,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// GetByID retrieves a single message
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	query := `
		SELECT id, channel, text, posted_at, COALESCE(image_ref, ''), image_labels
		FROM messages
		WHERE id = $1`

	m := &models.Message{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.Channel, &m.Text, &m.Timestamp, &m.ImageRef, &m.Image,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return m, nil
}

// ListUnscored returns messages with no indicator under the given rule
// version: never analyzed, or analyzed by an older table. Oldest first so the
// backlog drains in posting order.
func (r *MessageRepository) ListUnscored(ctx context.Context, ruleVersion string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 500
	}

	query := `
		SELECT m.id, m.channel, m.text, m.posted_at, COALESCE(m.image_ref, ''), m.image_labels
		FROM messages m
		LEFT JOIN risk_indicators ri ON ri.message_id = m.id
		WHERE ri.message_id IS NULL OR ri.rule_version <> $1
		ORDER BY m.posted_at
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, ruleVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unscored messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.Channel, &m.Text, &m.Timestamp, &m.ImageRef, &m.Image); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
