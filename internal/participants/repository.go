package participants

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fanzlive/backend/internal/models"
)

// Repository handles durable participant rows (hosts and co-stars).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a participants repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Add records a participant on a stream. Re-adding the same user updates the role.
func (r *Repository) Add(ctx context.Context, streamID, userID uuid.UUID, role models.ParticipantRole, verified bool) (*models.Participant, error) {
	const q = `INSERT INTO stream_participants (stream_id, user_id, role, is_verified)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (stream_id, user_id) DO UPDATE SET role = EXCLUDED.role
		RETURNING id, stream_id, user_id, role, is_verified, joined_at`
	var p models.Participant
	err := r.pool.QueryRow(ctx, q, streamID, userID, string(role), verified).
		Scan(&p.ID, &p.StreamID, &p.UserID, &p.Role, &p.IsVerified, &p.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Remove deletes a participant row. Removing an absent row is a no-op.
func (r *Repository) Remove(ctx context.Context, streamID, userID uuid.UUID) error {
	const q = `DELETE FROM stream_participants WHERE stream_id = $1 AND user_id = $2`
	_, err := r.pool.Exec(ctx, q, streamID, userID)
	return err
}

// ListByStream returns all participants of a stream in join order.
func (r *Repository) ListByStream(ctx context.Context, streamID uuid.UUID) ([]models.Participant, error) {
	const q = `SELECT id, stream_id, user_id, role, is_verified, joined_at
		FROM stream_participants WHERE stream_id = $1 ORDER BY joined_at`
	rows, err := r.pool.Query(ctx, q, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.StreamID, &p.UserID, &p.Role, &p.IsVerified, &p.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns a participant row, or (nil, nil) if the user is not a participant.
func (r *Repository) Get(ctx context.Context, streamID, userID uuid.UUID) (*models.Participant, error) {
	const q = `SELECT id, stream_id, user_id, role, is_verified, joined_at
		FROM stream_participants WHERE stream_id = $1 AND user_id = $2`
	var p models.Participant
	err := r.pool.QueryRow(ctx, q, streamID, userID).
		Scan(&p.ID, &p.StreamID, &p.UserID, &p.Role, &p.IsVerified, &p.JoinedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
