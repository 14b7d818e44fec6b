package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Phoenix-Boss/audioscape/internal/domain"
	"github.com/Phoenix-Boss/audioscape/internal/songkey"
)

const trackColumns = `id, isrc, title, artist, album, duration_seconds, artwork_url, provider_ids, access_count, last_accessed_at, created_at, updated_at`

// SaveTrack upserts a track keyed by its identity (ISRC when known,
// normalized title+artist otherwise). On conflict, non-empty incoming
// fields win, provider IDs merge, and the write counts as an access.
// The returned track is the stored row, which keeps its original ID when
// the identity already existed.
func (s *PostgresStore) SaveTrack(ctx context.Context, track *domain.Track) (*domain.Track, error) {
	if err := track.Validate(); err != nil {
		return nil, err
	}
	id := track.ID
	if id == "" {
		id = uuid.NewString()
	}
	providerIDs := track.ProviderIDs
	if providerIDs == nil {
		providerIDs = map[string]string{}
	}
	identity := songkey.Identity(track.ISRC, track.Title, track.Artist)
	now := time.Now().UTC()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO tracks (id, identity_key, isrc, title, artist, album, duration_seconds, artwork_url, provider_ids, access_count, last_accessed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $10, $10)
		ON CONFLICT (identity_key) DO UPDATE SET
			isrc = COALESCE(NULLIF(EXCLUDED.isrc, ''), tracks.isrc),
			album = COALESCE(NULLIF(EXCLUDED.album, ''), tracks.album),
			duration_seconds = CASE WHEN EXCLUDED.duration_seconds > 0 THEN EXCLUDED.duration_seconds ELSE tracks.duration_seconds END,
			artwork_url = COALESCE(NULLIF(EXCLUDED.artwork_url, ''), tracks.artwork_url),
			provider_ids = tracks.provider_ids || EXCLUDED.provider_ids,
			access_count = tracks.access_count + 1,
			last_accessed_at = EXCLUDED.last_accessed_at,
			updated_at = EXCLUDED.updated_at
		RETURNING `+trackColumns,
		id, identity, track.ISRC, track.Title, track.Artist, track.Album,
		track.DurationSeconds, track.ArtworkURL, providerIDs, now)

	saved, err := scanTrack(row)
	if err != nil {
		return nil, fmt.Errorf("save track: %w", err)
	}
	return saved, nil
}

// GetTrack returns the track with the given ID, or ErrNotFound.
func (s *PostgresStore) GetTrack(ctx context.Context, id string) (*domain.Track, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = $1`, id)
	t, err := scanTrack(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return t, nil
}

// GetTrackByIdentity returns the track with the given identity key, or
// ErrNotFound.
func (s *PostgresStore) GetTrackByIdentity(ctx context.Context, identityKey string) (*domain.Track, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+trackColumns+` FROM tracks WHERE identity_key = $1`, identityKey)
	t, err := scanTrack(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get track by identity: %w", err)
	}
	return t, nil
}

// TouchTrack bumps the track's access counter and last-accessed time.
func (s *PostgresStore) TouchTrack(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tracks SET access_count = access_count + 1, last_accessed_at = NOW(), updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch track: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTrack removes the track and, via cascade, its streams, search
// entries, and related links.
func (s *PostgresStore) DeleteTrack(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tracks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete track: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTrack(row pgx.Row) (*domain.Track, error) {
	var t domain.Track
	err := row.Scan(&t.ID, &t.ISRC, &t.Title, &t.Artist, &t.Album, &t.DurationSeconds,
		&t.ArtworkURL, &t.ProviderIDs, &t.AccessCount, &t.LastAccessedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
