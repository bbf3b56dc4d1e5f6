package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories bundles all PostgreSQL repositories
type Repositories struct {
	Indicators *IndicatorRepository
	Messages   *MessageRepository
}

// New creates all repositories sharing one connection pool
func New(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Indicators: NewIndicatorRepository(pool),
		Messages:   NewMessageRepository(pool),
	}
}
