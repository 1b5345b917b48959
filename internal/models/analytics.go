package models

import (
	"time"

	"github.com/google/uuid"
)

// StreamAnalytics is the live accumulator for one session, and the shape of
// the durable snapshot persisted when the stream ends.
type StreamAnalytics struct {
	CurrentViewers  int     `json:"current_viewers"`
	PeakViewers     int     `json:"peak_viewers"`
	TotalViewers    int     `json:"total_viewers"`
	AvgWatchSeconds float64 `json:"avg_watch_seconds"`
	TotalGifts      int     `json:"total_gifts"`
	GiftValueCents  int     `json:"gift_value_cents"`
	ChatMessages    int     `json:"chat_messages"`
	TotalReactions  int     `json:"total_reactions"`
	// RetentionCurve is currentViewers sampled once per minute while live.
	RetentionCurve []int `json:"retention_curve"`
}

// AnalyticsSnapshot is the durable analytics row written at stream end.
type AnalyticsSnapshot struct {
	ID        uuid.UUID       `json:"id"`
	StreamID  uuid.UUID       `json:"stream_id"`
	Analytics StreamAnalytics `json:"analytics"`
	CreatedAt time.Time       `json:"created_at"`
}

// WatchTimeRecord is the durable record of one completed viewer session.
type WatchTimeRecord struct {
	ID           uuid.UUID `json:"id"`
	StreamID     uuid.UUID `json:"stream_id"`
	UserID       uuid.UUID `json:"user_id"`
	JoinedAt     time.Time `json:"joined_at"`
	LeftAt       time.Time `json:"left_at"`
	WatchSeconds int64     `json:"watch_seconds"`
}
