package analytics

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fanzlive/backend/internal/models"
)

// Repository handles durable analytics snapshots.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveSnapshot writes the final analytics row for an ended stream.
func (r *Repository) SaveSnapshot(ctx context.Context, streamID uuid.UUID, a models.StreamAnalytics) error {
	curve, err := json.Marshal(a.RetentionCurve)
	if err != nil {
		return err
	}
	const q = `INSERT INTO analytics_snapshots (stream_id, current_viewers, peak_viewers, total_viewers,
			avg_watch_seconds, total_gifts, gift_value_cents, chat_messages, total_reactions, retention_curve)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = r.pool.Exec(ctx, q, streamID, a.CurrentViewers, a.PeakViewers, a.TotalViewers,
		a.AvgWatchSeconds, a.TotalGifts, a.GiftValueCents, a.ChatMessages, a.TotalReactions, curve)
	return err
}

// GetByStream returns the latest snapshot for a stream, or (nil, nil) if none
// has been written.
func (r *Repository) GetByStream(ctx context.Context, streamID uuid.UUID) (*models.AnalyticsSnapshot, error) {
	const q = `SELECT id, stream_id, current_viewers, peak_viewers, total_viewers, avg_watch_seconds,
			total_gifts, gift_value_cents, chat_messages, total_reactions, retention_curve, created_at
		FROM analytics_snapshots WHERE stream_id = $1 ORDER BY created_at DESC LIMIT 1`
	var snap models.AnalyticsSnapshot
	var curve []byte
	err := r.pool.QueryRow(ctx, q, streamID).Scan(&snap.ID, &snap.StreamID,
		&snap.Analytics.CurrentViewers, &snap.Analytics.PeakViewers, &snap.Analytics.TotalViewers,
		&snap.Analytics.AvgWatchSeconds, &snap.Analytics.TotalGifts, &snap.Analytics.GiftValueCents,
		&snap.Analytics.ChatMessages, &snap.Analytics.TotalReactions, &curve, &snap.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(curve, &snap.Analytics.RetentionCurve); err != nil {
		return nil, err
	}
	return &snap, nil
}
