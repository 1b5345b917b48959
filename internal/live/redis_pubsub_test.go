package live

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestRedisPubSubRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ps := NewRedisPubSub(client, zap.NewNop())
	sessionID := uuid.New()

	type received struct {
		origin, event string
		payload       []byte
	}
	got := make(chan received, 1)
	cancel, err := ps.SubscribeStream(sessionID, func(origin, event string, payload []byte) {
		got <- received{origin, event, payload}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := ps.PublishStreamEvent(sessionID, "instance-a", EventChatMessage, []byte(`{"text":"hi"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case r := <-got:
		if r.origin != "instance-a" {
			t.Fatalf("origin = %s", r.origin)
		}
		if r.event != EventChatMessage {
			t.Fatalf("event = %s", r.event)
		}
		if string(r.payload) != `{"text":"hi"}` {
			t.Fatalf("payload = %s", r.payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestRedisPubSubChannelIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ps := NewRedisPubSub(client, zap.NewNop())
	sessionA := uuid.New()
	sessionB := uuid.New()

	got := make(chan string, 2)
	cancel, err := ps.SubscribeStream(sessionA, func(_, event string, _ []byte) { got <- event })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := ps.PublishStreamEvent(sessionB, "x", EventReaction, []byte(`{}`)); err != nil {
		t.Fatalf("publish b: %v", err)
	}
	if err := ps.PublishStreamEvent(sessionA, "x", EventGiftReceived, []byte(`{}`)); err != nil {
		t.Fatalf("publish a: %v", err)
	}

	select {
	case ev := <-got:
		// Only session A's event arrives.
		if ev != EventGiftReceived {
			t.Fatalf("leaked event from another session: %s", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event not delivered")
	}
	select {
	case ev := <-got:
		t.Fatalf("unexpected second event: %s", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisPubSubCancelStopsDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ps := NewRedisPubSub(client, zap.NewNop())
	sessionID := uuid.New()

	got := make(chan string, 1)
	cancel, err := ps.SubscribeStream(sessionID, func(_, event string, _ []byte) { got <- event })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	time.Sleep(50 * time.Millisecond)

	if err := ps.PublishStreamEvent(sessionID, "x", EventReaction, []byte(`{}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-got:
		t.Fatalf("delivered after cancel: %s", ev)
	case <-time.After(200 * time.Millisecond):
	}
}
