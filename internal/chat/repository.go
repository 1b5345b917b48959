package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fanzlive/backend/internal/models"
)

// Repository handles durable chat rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a chat repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save inserts a chat message. The ID is assigned by the orchestrator so the
// broadcast and the row share it.
func (r *Repository) Save(ctx context.Context, m *models.ChatMessage) error {
	const q = `INSERT INTO chat_messages (id, stream_id, user_id, display_name, text, type, pinned, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, q, m.ID, m.StreamID, m.UserID, m.DisplayName, m.Text, string(m.Type), m.Pinned, m.CreatedAt)
	return err
}

// SetPinned flips the pinned flag on a message.
func (r *Repository) SetPinned(ctx context.Context, messageID uuid.UUID, pinned bool) error {
	const q = `UPDATE chat_messages SET pinned = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, pinned, messageID)
	return err
}

// ListRecent returns the newest messages for a stream, oldest first.
func (r *Repository) ListRecent(ctx context.Context, streamID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	const q = `SELECT id, stream_id, user_id, display_name, text, type, pinned, created_at
		FROM (
			SELECT id, stream_id, user_id, display_name, text, type, pinned, created_at
			FROM chat_messages WHERE stream_id = $1 ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, streamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.StreamID, &m.UserID, &m.DisplayName, &m.Text, &m.Type, &m.Pinned, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
