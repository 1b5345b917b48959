package live

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newConnectedClient(f *fixture, hub *Hub, userID uuid.UUID) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		hub:    hub,
		orch:   f.orch,
		send:   make(chan WSMessage, 8),
		logger: zap.NewNop(),
	}
}

func TestCreateStreamWhileInStream(t *testing.T) {
	f := newFixture(testStreamConfig())
	hub := NewHub(zap.NewNop(), nil, nil)
	host := f.addUser("host", true)
	c := newConnectedClient(f, hub, host)

	payload := json.RawMessage(`{"title":"first","visibility":"public"}`)
	if err := c.handleCreateStream(context.Background(), payload); err != nil {
		t.Fatalf("create: %v", err)
	}
	first := c.SessionID
	if first == uuid.Nil {
		t.Fatalf("client not attached to its session")
	}

	// A second create on the same connection is rejected; the client stays in
	// its current session and no new stream is opened.
	err := c.handleCreateStream(context.Background(), json.RawMessage(`{"title":"second","visibility":"public"}`))
	if err == nil || err.Error() != "already in a stream" {
		t.Fatalf("second create: expected already-in-a-stream error, got %v", err)
	}
	if c.SessionID != first {
		t.Fatalf("session changed to %s", c.SessionID)
	}
	f.store.mu.Lock()
	streams := len(f.store.streams)
	f.store.mu.Unlock()
	if streams != 1 {
		t.Fatalf("streams created = %d, want 1", streams)
	}
	if got := hub.ConnectionCount(first); got != 1 {
		t.Fatalf("room count = %d, want 1", got)
	}
}

func TestJoinStreamWhileInStream(t *testing.T) {
	f := newFixture(testStreamConfig())
	hub := NewHub(zap.NewNop(), nil, nil)
	sess, _ := f.liveSession(t)
	viewer := f.addUser("viewer", false)
	c := newConnectedClient(f, hub, viewer)

	join, _ := json.Marshal(map[string]interface{}{"session_id": sess.ID})
	if err := c.handleJoinStream(context.Background(), join); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := c.handleJoinStream(context.Background(), join); err == nil || err.Error() != "already in a stream" {
		t.Fatalf("second join: expected already-in-a-stream error, got %v", err)
	}
	if got := sess.ViewerCount(); got != 1 {
		t.Fatalf("viewer count = %d, want 1", got)
	}
}
