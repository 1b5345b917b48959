package streams

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fanzlive/backend/internal/models"
)

// Repository handles stream persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a streams repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const streamColumns = `id, host_id, title, description, visibility, price_cents, status,
	stream_key, recording_url, started_at, ended_at, created_at, updated_at`

func scanStream(row pgx.Row) (*models.Stream, error) {
	var s models.Stream
	var recordingURL *string
	err := row.Scan(&s.ID, &s.HostID, &s.Title, &s.Description, &s.Visibility, &s.PriceCents,
		&s.Status, &s.StreamKey, &recordingURL, &s.StartedAt, &s.EndedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if recordingURL != nil {
		s.RecordingURL = *recordingURL
	}
	return &s, nil
}

// Create inserts a new scheduled stream.
func (r *Repository) Create(ctx context.Context, hostID uuid.UUID, title, description string, visibility models.StreamVisibility, priceCents int, streamKey string) (*models.Stream, error) {
	const q = `INSERT INTO streams (host_id, title, description, visibility, price_cents, status, stream_key)
		VALUES ($1, $2, $3, $4, $5, 'scheduled', $6)
		RETURNING ` + streamColumns
	return scanStream(r.pool.QueryRow(ctx, q, hostID, title, description, string(visibility), priceCents, streamKey))
}

// GetByID returns a stream, or (nil, nil) if not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	const q = `SELECT ` + streamColumns + ` FROM streams WHERE id = $1`
	s, err := scanStream(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// GetByStreamKey looks up a stream by its ingest key, or (nil, nil) if not found.
func (r *Repository) GetByStreamKey(ctx context.Context, key string) (*models.Stream, error) {
	const q = `SELECT ` + streamColumns + ` FROM streams WHERE stream_key = $1`
	s, err := scanStream(r.pool.QueryRow(ctx, q, key))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// ListLive returns streams currently live, newest first.
func (r *Repository) ListLive(ctx context.Context, limit int) ([]models.Stream, error) {
	const q = `SELECT ` + streamColumns + ` FROM streams WHERE status = 'live'
		ORDER BY started_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStreams(rows)
}

// ListByHost returns a host's streams, newest first.
func (r *Repository) ListByHost(ctx context.Context, hostID uuid.UUID, limit int) ([]models.Stream, error) {
	const q = `SELECT ` + streamColumns + ` FROM streams WHERE host_id = $1
		ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, hostID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStreams(rows)
}

func collectStreams(rows pgx.Rows) ([]models.Stream, error) {
	var out []models.Stream
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// UpdateSettings changes a stream's presentation fields. Nil arguments leave
// the column untouched.
func (r *Repository) UpdateSettings(ctx context.Context, id uuid.UUID, title, description *string, visibility *models.StreamVisibility, priceCents *int) error {
	const q = `UPDATE streams SET
		title = COALESCE($1, title),
		description = COALESCE($2, description),
		visibility = COALESCE($3, visibility),
		price_cents = COALESCE($4, price_cents),
		updated_at = NOW()
		WHERE id = $5`
	var vis *string
	if visibility != nil {
		v := string(*visibility)
		vis = &v
	}
	_, err := r.pool.Exec(ctx, q, title, description, vis, priceCents, id)
	return err
}

// MarkLive transitions a stream to live with the given start time.
func (r *Repository) MarkLive(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	const q = `UPDATE streams SET status = 'live', started_at = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, startedAt, id)
	return err
}

// MarkEnded transitions a stream to ended with the given end time.
func (r *Repository) MarkEnded(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	const q = `UPDATE streams SET status = 'ended', ended_at = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, endedAt, id)
	return err
}

// SetRecordingURL stores the final playback URL once post-processing completes.
func (r *Repository) SetRecordingURL(ctx context.Context, id uuid.UUID, url string) error {
	const q = `UPDATE streams SET recording_url = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, url, id)
	return err
}
