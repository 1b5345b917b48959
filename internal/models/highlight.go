package models

import (
	"time"

	"github.com/google/uuid"
)

// HighlightType says how a highlight was detected.
type HighlightType string

const (
	HighlightAIDetected  HighlightType = "ai_detected"
	HighlightManual      HighlightType = "manual"
	HighlightPeakViewers HighlightType = "peak_viewers"
	HighlightPeakGifts   HighlightType = "peak_gifts"
)

// Highlight marks a notable time range of a broadcast.
// Offsets are seconds from stream start; EndSeconds > StartSeconds >= 0.
type Highlight struct {
	ID           uuid.UUID     `json:"id"`
	StreamID     uuid.UUID     `json:"stream_id"`
	Title        string        `json:"title"`
	StartSeconds int           `json:"start_seconds"`
	EndSeconds   int           `json:"end_seconds"`
	Type         HighlightType `json:"type"`
	Score        int           `json:"score"`
	CreatedAt    time.Time     `json:"created_at"`
}
