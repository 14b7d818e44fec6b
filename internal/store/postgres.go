package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the pgx-backed MetadataStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ MetadataStore = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &PostgresStore{pool: pool}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tracks (
			id TEXT PRIMARY KEY,
			identity_key TEXT NOT NULL UNIQUE,
			isrc TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			album TEXT NOT NULL DEFAULT '',
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			artwork_url TEXT NOT NULL DEFAULT '',
			provider_ids JSONB NOT NULL DEFAULT '{}'::jsonb,
			access_count BIGINT NOT NULL DEFAULT 0,
			last_accessed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tracks_last_accessed ON tracks(last_accessed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist)`,
		`CREATE TABLE IF NOT EXISTS streams (
			id TEXT PRIMARY KEY,
			track_id TEXT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			source TEXT NOT NULL,
			url TEXT NOT NULL,
			quality TEXT NOT NULL DEFAULT '',
			format TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMPTZ,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			health_score INTEGER NOT NULL DEFAULT 100,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_verified_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(track_id, source)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_streams_best ON streams(track_id, is_active, health_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_streams_expires ON streams(expires_at) WHERE expires_at IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS searches (
			normalized_query TEXT PRIMARY KEY,
			track_id TEXT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			hit_count BIGINT NOT NULL DEFAULT 1,
			first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_hit_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_searches_popular ON searches(hit_count DESC, last_hit_at DESC)`,
		`CREATE TABLE IF NOT EXISTS related_tracks (
			source_track_id TEXT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			related_track_id TEXT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			relevance DOUBLE PRECISION NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (source_track_id, related_track_id)
		)`,
		`CREATE TABLE IF NOT EXISTS artist_cache (
			name TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
