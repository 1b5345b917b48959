package verification

import (
	"context"

	"github.com/google/uuid"
)

// StatusSource reports whether a user has passed identity verification.
type StatusSource interface {
	IsVerified(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Gate answers the verification checks the stream orchestrator makes before
// letting a user broadcast. Viewers are never gated.
type Gate struct {
	source StatusSource
}

// NewGate creates a verification gate backed by the given status source.
func NewGate(source StatusSource) *Gate {
	return &Gate{source: source}
}

// CanBroadcast reports whether the user may go on camera (host or co-star).
func (g *Gate) CanBroadcast(ctx context.Context, userID uuid.UUID) (bool, error) {
	return g.source.IsVerified(ctx, userID)
}
