package live

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher publishes session events to Redis for other instances.
type EventPublisher interface {
	PublishStreamEvent(sessionID uuid.UUID, origin, event string, payload []byte) error
}

// EventSubscriber subscribes to a session's Redis channel and invokes the
// handler for each incoming event.
type EventSubscriber interface {
	SubscribeStream(sessionID uuid.UUID, handler func(origin, event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains sessionID -> set of connections and fans events out to them.
// Events published to Redis carry the hub's instance id so echoes of its own
// publishes are dropped and no client sees an event twice.
type Hub struct {
	instanceID string
	sessions   map[uuid.UUID]map[string]*Client
	subs       map[uuid.UUID]func()
	mu         sync.RWMutex
	logger     *zap.Logger
	pub        EventPublisher
	sub        EventSubscriber
}

// NewHub creates a connection hub. pub and sub may be nil for single-instance
// deployments and tests.
func NewHub(logger *zap.Logger, pub EventPublisher, sub EventSubscriber) *Hub {
	return &Hub{
		instanceID: uuid.New().String(),
		sessions:   make(map[uuid.UUID]map[string]*Client),
		subs:       make(map[uuid.UUID]func()),
		logger:     logger,
		pub:        pub,
		sub:        sub,
	}
}

// Register adds a client to a session room. The first client of a session
// starts the Redis subscription for it.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.sessions[c.SessionID] == nil {
		h.sessions[c.SessionID] = make(map[string]*Client)
		if h.sub != nil {
			sessionID := c.SessionID
			cancel, err := h.sub.SubscribeStream(sessionID, func(origin, event string, payload []byte) {
				if origin == h.instanceID {
					return
				}
				h.broadcastLocal(sessionID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[sessionID] = cancel
			} else {
				h.logger.Warn("stream subscription failed", zap.Error(err), zap.String("session_id", sessionID.String()))
			}
		}
	}
	h.sessions[c.SessionID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined session",
		zap.String("client_id", c.ID),
		zap.String("session_id", c.SessionID.String()))
}

// Unregister removes a client. The last client of a session cancels its Redis
// subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.sessions[c.SessionID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.sessions, c.SessionID)
			if cancel, ok := h.subs[c.SessionID]; ok {
				cancel()
				delete(h.subs, c.SessionID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left session",
		zap.String("client_id", c.ID),
		zap.String("session_id", c.SessionID.String()))
}

// Broadcast sends an event to every connection in the session, locally and
// via Redis to other instances.
func (h *Hub) Broadcast(sessionID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.broadcastLocal(sessionID, event, data)
	if h.pub != nil {
		_ = h.pub.PublishStreamEvent(sessionID, h.instanceID, event, data)
	}
}

func (h *Hub) broadcastLocal(sessionID uuid.UUID, event string, data json.RawMessage) {
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.sessions[sessionID]
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, drop for this connection
		}
	}
}

// SendToUser delivers an event to the connections a user holds in the
// session. No-op when the user has no live connection.
func (h *Hub) SendToUser(sessionID, userID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.sessions[sessionID]
	var targets []*Client
	for _, c := range clients {
		if c.UserID == userID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// CloseUser tears down every connection a user holds in a session: the
// clients leave the room and their sockets are closed, which ends their
// pumps. Used when a participant is removed or moderated out.
func (h *Hub) CloseUser(sessionID, userID uuid.UUID) {
	h.mu.Lock()
	var targets []*Client
	if m, ok := h.sessions[sessionID]; ok {
		for id, c := range m {
			if c.UserID == userID {
				targets = append(targets, c)
				delete(m, id)
			}
		}
		if len(m) == 0 {
			delete(h.sessions, sessionID)
			if cancel, ok := h.subs[sessionID]; ok {
				cancel()
				delete(h.subs, sessionID)
			}
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
	if len(targets) > 0 {
		h.logger.Debug("user connections closed",
			zap.String("user_id", userID.String()),
			zap.String("session_id", sessionID.String()))
	}
}

// ConnectionCount returns the number of connections in a session room.
func (h *Hub) ConnectionCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
