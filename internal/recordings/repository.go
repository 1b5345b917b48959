package recordings

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fanzlive/backend/internal/models"
)

// Repository handles durable recording rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordingColumns = `id, stream_id, COALESCE(ingest_url, ''), COALESCE(s3_url, ''),
	COALESCE(s3_key, ''), duration, file_size, status, created_at, updated_at`

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.ID, &rec.StreamID, &rec.IngestURL, &rec.S3URL, &rec.S3Key,
		&rec.Duration, &rec.FileSize, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create inserts a recording row in the recording state.
func (r *Repository) Create(ctx context.Context, streamID uuid.UUID, ingestURL string) (*models.Recording, error) {
	const q = `INSERT INTO recordings (stream_id, ingest_url, status)
		VALUES ($1, NULLIF($2, ''), 'recording')
		RETURNING ` + recordingColumns
	return scanRecording(r.pool.QueryRow(ctx, q, streamID, ingestURL))
}

// GetByID returns a recording, or (nil, nil) if not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	const q = `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListByStream returns a stream's recordings, newest first.
func (r *Repository) ListByStream(ctx context.Context, streamID uuid.UUID) ([]models.Recording, error) {
	const q = `SELECT ` + recordingColumns + ` FROM recordings WHERE stream_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// SetStatus updates a recording's processing state.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	const q = `UPDATE recordings SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, status, id)
	return err
}

// UpdateS3Result stores the uploaded object location and marks the recording
// completed.
func (r *Repository) UpdateS3Result(ctx context.Context, id uuid.UUID, s3URL, s3Key string, fileSize int64, duration int) error {
	const q = `UPDATE recordings SET s3_url = $1, s3_key = $2, file_size = $3, duration = $4,
		status = 'completed', updated_at = NOW() WHERE id = $5`
	_, err := r.pool.Exec(ctx, q, s3URL, s3Key, fileSize, duration, id)
	return err
}
