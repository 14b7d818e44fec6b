package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Phoenix-Boss/audioscape/internal/domain"
)

// SaveSearch binds a normalized query to a track. The first save creates
// the record with one hit; repeats re-point it and add a hit.
func (s *PostgresStore) SaveSearch(ctx context.Context, normalizedQuery, trackID string) (*domain.SearchRecord, error) {
	if normalizedQuery == "" || trackID == "" {
		return nil, fmt.Errorf("search query and track id are required")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO searches (normalized_query, track_id, hit_count, first_seen_at, last_hit_at)
		VALUES ($1, $2, 1, NOW(), NOW())
		ON CONFLICT (normalized_query) DO UPDATE SET
			track_id = EXCLUDED.track_id,
			hit_count = searches.hit_count + 1,
			last_hit_at = NOW()
		RETURNING normalized_query, track_id, hit_count, first_seen_at, last_hit_at`,
		normalizedQuery, trackID)

	rec, err := scanSearch(row)
	if err != nil {
		return nil, fmt.Errorf("save search: %w", err)
	}
	return rec, nil
}

// TouchSearch adds a hit to an existing search record.
func (s *PostgresStore) TouchSearch(ctx context.Context, normalizedQuery string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE searches SET hit_count = hit_count + 1, last_hit_at = NOW()
		WHERE normalized_query = $1`, normalizedQuery)
	if err != nil {
		return fmt.Errorf("touch search: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindBySearch resolves a normalized query through the search index,
// counting the hit on the search record and the access on the track in
// one statement.
func (s *PostgresStore) FindBySearch(ctx context.Context, normalizedQuery string) (*domain.Track, *domain.SearchRecord, error) {
	row := s.pool.QueryRow(ctx, `
		WITH hit AS (
			UPDATE searches SET hit_count = hit_count + 1, last_hit_at = NOW()
			WHERE normalized_query = $1
			RETURNING track_id, hit_count, first_seen_at, last_hit_at
		)
		UPDATE tracks t SET access_count = t.access_count + 1, last_accessed_at = NOW(), updated_at = NOW()
		FROM hit h
		WHERE t.id = h.track_id
		RETURNING t.id, t.isrc, t.title, t.artist, t.album, t.duration_seconds, t.artwork_url,
			t.provider_ids, t.access_count, t.last_accessed_at, t.created_at, t.updated_at,
			h.hit_count, h.first_seen_at, h.last_hit_at`,
		normalizedQuery)

	var t domain.Track
	rec := &domain.SearchRecord{NormalizedQuery: normalizedQuery}
	err := row.Scan(&t.ID, &t.ISRC, &t.Title, &t.Artist, &t.Album, &t.DurationSeconds,
		&t.ArtworkURL, &t.ProviderIDs, &t.AccessCount, &t.LastAccessedAt, &t.CreatedAt, &t.UpdatedAt,
		&rec.HitCount, &rec.FirstSeenAt, &rec.LastHitAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find by search: %w", err)
	}
	rec.TrackID = t.ID
	return &t, rec, nil
}

// GetPopularSearches returns the most-hit search records with at least
// minHits hits, most popular first.
func (s *PostgresStore) GetPopularSearches(ctx context.Context, limit, minHits int) ([]*domain.SearchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT normalized_query, track_id, hit_count, first_seen_at, last_hit_at
		FROM searches
		WHERE hit_count >= $2
		ORDER BY hit_count DESC, last_hit_at DESC
		LIMIT $1`, limit, minHits)
	if err != nil {
		return nil, fmt.Errorf("get popular searches: %w", err)
	}
	defer rows.Close()

	var records []*domain.SearchRecord
	for rows.Next() {
		rec, err := scanSearch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get popular searches: %w", err)
	}
	return records, nil
}

func scanSearch(row pgx.Row) (*domain.SearchRecord, error) {
	var rec domain.SearchRecord
	err := row.Scan(&rec.NormalizedQuery, &rec.TrackID, &rec.HitCount, &rec.FirstSeenAt, &rec.LastHitAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
