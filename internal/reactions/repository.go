package reactions

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fanzlive/backend/internal/models"
)

// Repository handles durable reaction rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reactions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save inserts a reaction event.
func (r *Repository) Save(ctx context.Context, re *models.Reaction) error {
	const q = `INSERT INTO reactions (stream_id, user_id, type, intensity, offset_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	return r.pool.QueryRow(ctx, q, re.StreamID, re.UserID, re.Type, re.Intensity, re.OffsetSeconds, re.CreatedAt).
		Scan(&re.ID)
}

// CountForStream returns the number of reactions recorded for a stream.
func (r *Repository) CountForStream(ctx context.Context, streamID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM reactions WHERE stream_id = $1`
	var n int
	if err := r.pool.QueryRow(ctx, q, streamID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
