package viewers

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fanzlive/backend/internal/models"
)

// Repository handles durable watch-time records, written when a viewer leaves
// or a stream ends.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a viewers repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveWatchTime records one completed viewer session.
func (r *Repository) SaveWatchTime(ctx context.Context, w *models.WatchTimeRecord) error {
	const q = `INSERT INTO watch_time_records (stream_id, user_id, joined_at, left_at, watch_seconds)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	return r.pool.QueryRow(ctx, q, w.StreamID, w.UserID, w.JoinedAt, w.LeftAt, w.WatchSeconds).Scan(&w.ID)
}

// TotalWatchSeconds returns the summed watch time for a stream.
func (r *Repository) TotalWatchSeconds(ctx context.Context, streamID uuid.UUID) (int64, error) {
	const q = `SELECT COALESCE(SUM(watch_seconds), 0) FROM watch_time_records WHERE stream_id = $1`
	var total int64
	if err := r.pool.QueryRow(ctx, q, streamID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
