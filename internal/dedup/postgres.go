package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS seen_postings (
	key     TEXT PRIMARY KEY,
	seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps seen keys in a seen_postings table
type PostgresStore struct {
	db  *pgxpool.Pool
	ttl time.Duration
}

// NewPostgresStore connects, creates the table if needed and prunes expired rows
func NewPostgresStore(ctx context.Context, connString string, ttl time.Duration) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}

	config.MaxConns = 4
	config.MaxConnLifetime = time.Hour
	// Poolers in transaction mode do not support prepared statements
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create seen_postings: %w", err)
	}

	s := &PostgresStore{db: pool, ttl: ttl}
	if _, err := s.Prune(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) HasSeen(ctx context.Context, key string) (bool, error) {
	var seenAt time.Time
	err := s.db.QueryRow(ctx, "SELECT seen_at FROM seen_postings WHERE key = $1", key).Scan(&seenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query seen posting: %w", err)
	}
	if s.ttl > 0 && time.Since(seenAt) > s.ttl {
		return false, nil
	}
	return true, nil
}

// MarkSeen inserts the key or refreshes its timestamp
func (s *PostgresStore) MarkSeen(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO seen_postings (key, seen_at) VALUES ($1, now())
		ON CONFLICT (key) DO UPDATE SET seen_at = EXCLUDED.seen_at`, key)
	if err != nil {
		return fmt.Errorf("mark posting seen: %w", err)
	}
	return nil
}

// Prune deletes rows older than the TTL
func (s *PostgresStore) Prune(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, "DELETE FROM seen_postings WHERE seen_at < $1", time.Now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("prune seen postings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
