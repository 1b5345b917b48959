package models

import (
	"time"

	"github.com/google/uuid"
)

// StreamStatus is the lifecycle state of a stream.
type StreamStatus string

const (
	StreamScheduled StreamStatus = "scheduled"
	StreamLive      StreamStatus = "live"
	StreamEnded     StreamStatus = "ended"
)

// StreamVisibility controls who may watch a stream.
type StreamVisibility string

const (
	VisibilityPublic     StreamVisibility = "public"
	VisibilitySubscriber StreamVisibility = "subscriber"
	VisibilityPrivate    StreamVisibility = "private"
)

// Stream is the durable record of a broadcast.
type Stream struct {
	ID           uuid.UUID        `json:"id"`
	HostID       uuid.UUID        `json:"host_id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Visibility   StreamVisibility `json:"visibility"`
	PriceCents   int              `json:"price_cents"`
	Status       StreamStatus     `json:"status"`
	StreamKey    string           `json:"-"`
	RecordingURL string           `json:"recording_url,omitempty"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	EndedAt      *time.Time       `json:"ended_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
