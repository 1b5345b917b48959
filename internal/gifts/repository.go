package gifts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fanzlive/backend/internal/models"
)

// Repository handles gifts and their platform ledger entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a gifts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveWithTransaction writes the gift and its ledger entry in one database
// transaction, so the gift row and the creator credit cannot diverge.
func (r *Repository) SaveWithTransaction(ctx context.Context, g *models.Gift, t *models.Transaction) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const giftQ = `INSERT INTO gifts (id, stream_id, sender_id, sender_name, receiver_id, gift_type,
			unit_value, quantity, total_value, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)`
	if _, err := tx.Exec(ctx, giftQ, g.ID, g.StreamID, g.SenderID, g.SenderName, g.ReceiverID,
		g.GiftType, g.UnitValue, g.Quantity, g.TotalValue, g.Message, g.CreatedAt); err != nil {
		return fmt.Errorf("insert gift: %w", err)
	}

	const txQ = `INSERT INTO transactions (gift_id, payer_id, payee_id, gross_cents, amount_cents)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	if err := tx.QueryRow(ctx, txQ, t.GiftID, t.PayerID, t.PayeeID, t.GrossCents, t.AmountCents).
		Scan(&t.ID, &t.CreatedAt); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	return tx.Commit(ctx)
}

// TotalForStream returns the summed gift value of a stream in minor units.
func (r *Repository) TotalForStream(ctx context.Context, streamID uuid.UUID) (int, error) {
	const q = `SELECT COALESCE(SUM(total_value), 0) FROM gifts WHERE stream_id = $1`
	var total int
	if err := r.pool.QueryRow(ctx, q, streamID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
