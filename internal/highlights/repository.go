package highlights

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fanzlive/backend/internal/models"
)

// Repository handles durable highlight rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a highlights repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save inserts a highlight. The ID is assigned by the orchestrator.
func (r *Repository) Save(ctx context.Context, h *models.Highlight) error {
	const q = `INSERT INTO highlights (id, stream_id, title, start_seconds, end_seconds, type, score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, q, h.ID, h.StreamID, h.Title, h.StartSeconds, h.EndSeconds, string(h.Type), h.Score, h.CreatedAt)
	return err
}

// ListByStream returns a stream's highlights ordered by start offset.
func (r *Repository) ListByStream(ctx context.Context, streamID uuid.UUID) ([]models.Highlight, error) {
	const q = `SELECT id, stream_id, title, start_seconds, end_seconds, type, score, created_at
		FROM highlights WHERE stream_id = $1 ORDER BY start_seconds`
	rows, err := r.pool.Query(ctx, q, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Highlight
	for rows.Next() {
		var h models.Highlight
		if err := rows.Scan(&h.ID, &h.StreamID, &h.Title, &h.StartSeconds, &h.EndSeconds, &h.Type, &h.Score, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
