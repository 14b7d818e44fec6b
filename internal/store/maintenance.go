package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Phoenix-Boss/audioscape/internal/domain"
)

// GetExpiringStreams returns active streams whose URL expires within the
// given window, soonest first. The refresh job re-resolves these before
// playback would hit a dead link.
func (s *PostgresStore) GetExpiringStreams(ctx context.Context, within time.Duration, limit int) ([]*domain.Stream, error) {
	if limit <= 0 {
		limit = 50
	}
	cutoff := time.Now().UTC().Add(within)
	rows, err := s.pool.Query(ctx, `
		SELECT `+streamColumns+` FROM streams
		WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("get expiring streams: %w", err)
	}
	defer rows.Close()

	var streams []*domain.Stream
	for rows.Next() {
		st, err := scanStream(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		streams = append(streams, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get expiring streams: %w", err)
	}
	return streams, nil
}

// GetStaleTracks returns tracks not accessed for longer than olderThan,
// least recently accessed first.
func (s *PostgresStore) GetStaleTracks(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Track, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.pool.Query(ctx, `
		SELECT `+trackColumns+` FROM tracks
		WHERE last_accessed_at < $1
		ORDER BY last_accessed_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("get stale tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*domain.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get stale tracks: %w", err)
	}
	return tracks, nil
}

// Stats returns catalog row counts.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM tracks),
			(SELECT COUNT(*) FROM streams),
			(SELECT COUNT(*) FROM streams WHERE is_active),
			(SELECT COUNT(*) FROM searches),
			(SELECT COUNT(*) FROM related_tracks),
			(SELECT COUNT(*) FROM artist_cache)`).
		Scan(&st.Tracks, &st.Streams, &st.ActiveStreams, &st.Searches, &st.RelatedLinks, &st.Artists)
	if err != nil {
		return nil, fmt.Errorf("store stats: %w", err)
	}
	return &st, nil
}
