package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantRole is the role of a broadcast participant.
type ParticipantRole string

const (
	ParticipantHost      ParticipantRole = "host"
	ParticipantCoStar    ParticipantRole = "co-star"
	ParticipantModerator ParticipantRole = "moderator"
)

// Participant is a durable record of a host or co-star on a stream.
type Participant struct {
	ID         uuid.UUID       `json:"id"`
	StreamID   uuid.UUID       `json:"stream_id"`
	UserID     uuid.UUID       `json:"user_id"`
	Role       ParticipantRole `json:"role"`
	IsVerified bool            `json:"is_verified"`
	JoinedAt   time.Time       `json:"joined_at"`
}
