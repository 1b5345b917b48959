package models

import (
	"time"

	"github.com/google/uuid"
)

// Reaction is one reaction event, timestamped relative to stream start.
type Reaction struct {
	ID            uuid.UUID `json:"id"`
	StreamID      uuid.UUID `json:"stream_id"`
	UserID        uuid.UUID `json:"user_id"`
	Type          string    `json:"type"`
	Intensity     int       `json:"intensity"`
	OffsetSeconds int       `json:"offset_seconds"`
	CreatedAt     time.Time `json:"created_at"`
}
