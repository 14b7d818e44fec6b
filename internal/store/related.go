package store

import (
	"context"
	"fmt"

	"github.com/Phoenix-Boss/audioscape/internal/domain"
)

// LinkRelated records that relatedTrackID is worth suggesting after
// sourceTrackID. Re-linking updates the relevance. Self-links are ignored.
func (s *PostgresStore) LinkRelated(ctx context.Context, sourceTrackID, relatedTrackID string, relevance float64, reason string) error {
	if sourceTrackID == relatedTrackID {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO related_tracks (source_track_id, related_track_id, relevance, reason, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (source_track_id, related_track_id) DO UPDATE SET
			relevance = EXCLUDED.relevance,
			reason = EXCLUDED.reason`,
		sourceTrackID, relatedTrackID, relevance, reason)
	if err != nil {
		return fmt.Errorf("link related: %w", err)
	}
	return nil
}

// GetRelatedTracks returns tracks linked to trackID, most relevant first,
// with the related track hydrated on each link.
func (s *PostgresStore) GetRelatedTracks(ctx context.Context, trackID string, limit int) ([]*domain.RelatedTrack, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT r.source_track_id, r.related_track_id, r.relevance, r.reason, r.created_at,
			t.id, t.isrc, t.title, t.artist, t.album, t.duration_seconds, t.artwork_url,
			t.provider_ids, t.access_count, t.last_accessed_at, t.created_at, t.updated_at
		FROM related_tracks r
		JOIN tracks t ON t.id = r.related_track_id
		WHERE r.source_track_id = $1
		ORDER BY r.relevance DESC, r.created_at ASC
		LIMIT $2`, trackID, limit)
	if err != nil {
		return nil, fmt.Errorf("get related tracks: %w", err)
	}
	defer rows.Close()

	var related []*domain.RelatedTrack
	for rows.Next() {
		var r domain.RelatedTrack
		var t domain.Track
		err := rows.Scan(&r.SourceTrackID, &r.RelatedTrackID, &r.Relevance, &r.Reason, &r.CreatedAt,
			&t.ID, &t.ISRC, &t.Title, &t.Artist, &t.Album, &t.DurationSeconds, &t.ArtworkURL,
			&t.ProviderIDs, &t.AccessCount, &t.LastAccessedAt, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan related track: %w", err)
		}
		r.Track = &t
		related = append(related, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get related tracks: %w", err)
	}
	return related, nil
}
