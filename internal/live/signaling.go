package live

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Relay forwards WebRTC signaling payloads (offer/answer/ICE) between
// participants of the same session. Payloads pass through as raw JSON; the
// relay never parses SDP or candidate contents.
type Relay struct {
	broadcaster Broadcaster
}

// NewRelay creates a signaling relay over the given broadcaster.
func NewRelay(b Broadcaster) *Relay {
	return &Relay{broadcaster: b}
}

// SignalEnvelope is the outbound webrtc_signal payload.
type SignalEnvelope struct {
	FromUserID uuid.UUID       `json:"from_user_id"`
	Signal     json.RawMessage `json:"signal"`
}

// Forward sends the signal to every participant except the sender. A
// participant with no live connection is silently skipped; signaling is
// fire-and-forget.
func (r *Relay) Forward(sess *Session, fromUserID uuid.UUID, signal []byte) {
	env := SignalEnvelope{FromUserID: fromUserID, Signal: signal}
	for _, id := range sess.ParticipantIDs() {
		if id == fromUserID {
			continue
		}
		r.broadcaster.SendToUser(sess.ID, id, EventWebRTCSignal, env)
	}
}
