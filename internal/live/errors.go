package live

import "errors"

// Error taxonomy for live-stream operations. The gateway turns these into
// `error` messages on the originating connection; they never take down other
// sessions.
var (
	// ErrNotFound covers unknown sessions, users and participants.
	ErrNotFound = errors.New("not found")
	// ErrVerificationRequired means a host or co-star has not passed identity
	// verification.
	ErrVerificationRequired = errors.New("identity verification required")
	// ErrUnauthorized means the caller lacks the privilege for the action,
	// e.g. a viewer trying to end the stream.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidOperation covers structurally impossible requests, e.g.
	// removing the host.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrContentModerated means chat text matched the blocklist.
	ErrContentModerated = errors.New("message blocked by moderation")
	// ErrInvalidState rejects lifecycle transitions out of order, e.g.
	// starting an already live stream.
	ErrInvalidState = errors.New("invalid stream state")
)
