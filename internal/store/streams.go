package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Phoenix-Boss/audioscape/internal/domain"
)

const streamColumns = `id, track_id, source, url, quality, format, expires_at, is_active, health_score, failure_count, last_verified_at, created_at, updated_at`

// SaveStream upserts a stream keyed by (track, source). A re-resolved
// stream replaces the stored URL, reactivates the row, and resets its
// health: the provider just handed out a working location.
func (s *PostgresStore) SaveStream(ctx context.Context, stream *domain.Stream) (*domain.Stream, error) {
	if stream.TrackID == "" || stream.Source == "" || stream.URL == "" {
		return nil, fmt.Errorf("stream track, source, and url are required")
	}
	id := stream.ID
	if id == "" {
		id = uuid.NewString()
	}
	health := stream.HealthScore
	if health <= 0 {
		health = domain.StreamHealthMax
	}
	var expiresAt *time.Time
	if !stream.ExpiresAt.IsZero() {
		t := stream.ExpiresAt.UTC()
		expiresAt = &t
	}
	now := time.Now().UTC()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO streams (id, track_id, source, url, quality, format, expires_at, is_active, health_score, failure_count, last_verified_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, 0, $9, $9, $9)
		ON CONFLICT (track_id, source) DO UPDATE SET
			url = EXCLUDED.url,
			quality = EXCLUDED.quality,
			format = EXCLUDED.format,
			expires_at = EXCLUDED.expires_at,
			is_active = TRUE,
			health_score = EXCLUDED.health_score,
			failure_count = 0,
			last_verified_at = EXCLUDED.last_verified_at,
			updated_at = EXCLUDED.updated_at
		RETURNING `+streamColumns,
		id, stream.TrackID, stream.Source, stream.URL, stream.Quality, stream.Format,
		expiresAt, health, now)

	saved, err := scanStream(row)
	if err != nil {
		return nil, fmt.Errorf("save stream: %w", err)
	}
	return saved, nil
}

// GetBestStream returns the healthiest active stream for a track,
// deactivating any whose URL has expired first. ErrNotFound means the
// track has no playable stream and needs re-resolution.
func (s *PostgresStore) GetBestStream(ctx context.Context, trackID string) (*domain.Stream, error) {
	_, err := s.pool.Exec(ctx, `
		UPDATE streams SET is_active = FALSE, updated_at = NOW()
		WHERE track_id = $1 AND is_active AND expires_at IS NOT NULL AND expires_at <= NOW()`, trackID)
	if err != nil {
		return nil, fmt.Errorf("expire streams: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		SELECT `+streamColumns+` FROM streams
		WHERE track_id = $1 AND is_active
		ORDER BY health_score DESC, last_verified_at DESC
		LIMIT 1`, trackID)
	best, err := scanStream(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get best stream: %w", err)
	}
	return best, nil
}

// ReportStreamFailure applies one failure to a stream: the health score
// drops by the penalty and the stream deactivates once the score reaches
// zero or the failure count reaches the maximum. The whole step is a
// single statement so concurrent reports never double-apply.
func (s *PostgresStore) ReportStreamFailure(ctx context.Context, streamID string) (*domain.Stream, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE streams SET
			health_score = GREATEST(health_score - $2, 0),
			failure_count = failure_count + 1,
			is_active = CASE
				WHEN health_score - $2 <= 0 OR failure_count + 1 >= $3 THEN FALSE
				ELSE is_active
			END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+streamColumns,
		streamID, domain.StreamFailurePenalty, domain.StreamMaxFailures)

	updated, err := scanStream(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("report stream failure: %w", err)
	}
	return updated, nil
}

func scanStream(row pgx.Row) (*domain.Stream, error) {
	var st domain.Stream
	var expiresAt *time.Time
	err := row.Scan(&st.ID, &st.TrackID, &st.Source, &st.URL, &st.Quality, &st.Format,
		&expiresAt, &st.IsActive, &st.HealthScore, &st.FailureCount,
		&st.LastVerifiedAt, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expiresAt != nil {
		st.ExpiresAt = *expiresAt
	}
	return &st, nil
}
