package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Phoenix-Boss/audioscape/internal/domain"
	"github.com/Phoenix-Boss/audioscape/internal/songkey"
)

// SaveArtist stores an artist snapshot as one JSONB blob keyed by the
// normalized artist name.
func (s *PostgresStore) SaveArtist(ctx context.Context, info *domain.ArtistInfo) error {
	if info == nil || info.Name == "" {
		return fmt.Errorf("artist name is required")
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode artist: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO artist_cache (name, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW()`,
		songkey.Normalize(info.Name), data)
	if err != nil {
		return fmt.Errorf("save artist: %w", err)
	}
	return nil
}

// GetArtist returns the snapshot for an artist name, or ErrNotFound.
func (s *PostgresStore) GetArtist(ctx context.Context, name string) (*domain.ArtistInfo, error) {
	var data []byte
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT data, updated_at FROM artist_cache WHERE name = $1`,
		songkey.Normalize(name)).Scan(&data, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artist: %w", err)
	}
	var info domain.ArtistInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode artist: %w", err)
	}
	info.UpdatedAt = updatedAt
	return &info, nil
}
