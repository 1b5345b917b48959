package live

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newTestClient(sessionID, userID uuid.UUID) *Client {
	return &Client{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		send:      make(chan WSMessage, 8),
	}
}

func recvMessage(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no message delivered to client %s", c.ID)
		return WSMessage{}
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()
	c1 := newTestClient(sessionID, uuid.New())
	c2 := newTestClient(sessionID, uuid.New())
	other := newTestClient(uuid.New(), uuid.New())
	hub.Register(c1)
	hub.Register(c2)
	hub.Register(other)

	hub.Broadcast(sessionID, EventChatMessage, map[string]string{"text": "hi"})

	for _, c := range []*Client{c1, c2} {
		msg := recvMessage(t, c)
		if msg.Event != EventChatMessage {
			t.Fatalf("event = %s, want %s", msg.Event, EventChatMessage)
		}
		var body map[string]string
		if err := json.Unmarshal(msg.Data, &body); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if body["text"] != "hi" {
			t.Fatalf("payload = %v", body)
		}
	}
	select {
	case msg := <-other.send:
		t.Fatalf("client in another session received %s", msg.Event)
	default:
	}
}

func TestHubSendToUser(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()
	target := uuid.New()
	c1 := newTestClient(sessionID, target)
	c2 := newTestClient(sessionID, uuid.New())
	hub.Register(c1)
	hub.Register(c2)

	hub.SendToUser(sessionID, target, EventModerated, map[string]string{"action": "mute"})

	if msg := recvMessage(t, c1); msg.Event != EventModerated {
		t.Fatalf("event = %s", msg.Event)
	}
	select {
	case msg := <-c2.send:
		t.Fatalf("non-target received %s", msg.Event)
	default:
	}
}

func TestHubFullBufferDropsForThatClient(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()
	slow := &Client{ID: "slow", UserID: uuid.New(), SessionID: sessionID, send: make(chan WSMessage)}
	fast := newTestClient(sessionID, uuid.New())
	hub.Register(slow)
	hub.Register(fast)

	// slow's unbuffered channel has no reader; the broadcast must not block
	// and must still reach fast.
	done := make(chan struct{})
	go func() {
		hub.Broadcast(sessionID, EventReaction, map[string]int{"n": 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcast blocked on a dead connection")
	}
	if msg := recvMessage(t, fast); msg.Event != EventReaction {
		t.Fatalf("event = %s", msg.Event)
	}
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()
	c := newTestClient(sessionID, uuid.New())
	hub.Register(c)
	if hub.ConnectionCount(sessionID) != 1 {
		t.Fatalf("count = %d", hub.ConnectionCount(sessionID))
	}
	hub.Unregister(c)
	if hub.ConnectionCount(sessionID) != 0 {
		t.Fatalf("count after unregister = %d", hub.ConnectionCount(sessionID))
	}
	// Unregistering twice is harmless.
	hub.Unregister(c)
}

func TestHubCloseUser(t *testing.T) {
	bridge := newFakeBridge()
	hub := NewHub(zap.NewNop(), bridge, bridge)
	sessionID := uuid.New()
	removed := uuid.New()
	r1 := newTestClient(sessionID, removed)
	r2 := newTestClient(sessionID, removed)
	stays := newTestClient(sessionID, uuid.New())
	hub.Register(r1)
	hub.Register(r2)
	hub.Register(stays)

	hub.CloseUser(sessionID, removed)

	// Closed connections leave the room and no longer receive broadcasts.
	hub.Broadcast(sessionID, EventChatMessage, map[string]string{"text": "after"})
	for _, c := range []*Client{r1, r2} {
		select {
		case msg := <-c.send:
			t.Fatalf("closed client %s received %s", c.ID, msg.Event)
		default:
		}
	}
	if msg := recvMessage(t, stays); msg.Event != EventChatMessage {
		t.Fatalf("event = %s", msg.Event)
	}
	if got := hub.ConnectionCount(sessionID); got != 1 {
		t.Fatalf("room count = %d, want 1", got)
	}

	// Closing the last user empties the room and cancels the subscription.
	hub.CloseUser(sessionID, stays.UserID)
	if got := hub.ConnectionCount(sessionID); got != 0 {
		t.Fatalf("room count = %d, want 0", got)
	}
	bridge.mu.Lock()
	canceled := bridge.canceled
	bridge.mu.Unlock()
	if canceled != 1 {
		t.Fatalf("subscription cancels = %d, want 1", canceled)
	}
}

// fakeBridge implements EventPublisher/EventSubscriber in memory so the
// cross-instance path is testable without Redis.
type fakeBridge struct {
	mu        sync.Mutex
	published []string
	handlers  map[uuid.UUID]func(origin, event string, payload []byte)
	canceled  int
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{handlers: make(map[uuid.UUID]func(origin, event string, payload []byte))}
}

func (b *fakeBridge) PublishStreamEvent(sessionID uuid.UUID, origin, event string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
	return nil
}

func (b *fakeBridge) SubscribeStream(sessionID uuid.UUID, handler func(origin, event string, payload []byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[sessionID] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.canceled++
		delete(b.handlers, sessionID)
	}, nil
}

func (b *fakeBridge) deliver(sessionID uuid.UUID, origin, event string, payload []byte) {
	b.mu.Lock()
	h := b.handlers[sessionID]
	b.mu.Unlock()
	if h != nil {
		h(origin, event, payload)
	}
}

func TestHubCrossInstanceBridge(t *testing.T) {
	bridge := newFakeBridge()
	hub := NewHub(zap.NewNop(), bridge, bridge)
	sessionID := uuid.New()
	c := newTestClient(sessionID, uuid.New())
	hub.Register(c)

	// A broadcast goes out locally and to the bridge.
	hub.Broadcast(sessionID, EventViewerCountUpdated, map[string]int{"count": 3})
	recvMessage(t, c)
	bridge.mu.Lock()
	published := len(bridge.published)
	bridge.mu.Unlock()
	if published != 1 {
		t.Fatalf("published %d events, want 1", published)
	}

	// An event from another instance is delivered locally.
	bridge.deliver(sessionID, "other-instance", EventChatMessage, []byte(`{"text":"remote"}`))
	if msg := recvMessage(t, c); msg.Event != EventChatMessage {
		t.Fatalf("event = %s", msg.Event)
	}

	// The hub's own echo is dropped.
	bridge.deliver(sessionID, hub.instanceID, EventChatMessage, []byte(`{}`))
	select {
	case msg := <-c.send:
		t.Fatalf("own echo delivered: %s", msg.Event)
	default:
	}

	// Last client leaving cancels the subscription.
	hub.Unregister(c)
	bridge.mu.Lock()
	canceled := bridge.canceled
	bridge.mu.Unlock()
	if canceled != 1 {
		t.Fatalf("subscription cancels = %d, want 1", canceled)
	}
}
