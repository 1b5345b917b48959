package live

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	streamChannelPrefix = "stream:"
	publishTimeout      = 5 * time.Second
)

// streamEvent is the message published to a session's Redis channel. Origin
// identifies the publishing instance so subscribers can drop their own echoes.
type streamEvent struct {
	Origin string          `json:"origin"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	At     int64           `json:"at"`
}

// RedisPubSub bridges session events across instances over Redis pub/sub,
// one channel per session.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates the pub/sub bridge.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger}
}

// PublishStreamEvent publishes an event to the session's channel.
func (r *RedisPubSub) PublishStreamEvent(sessionID uuid.UUID, origin, event string, payload []byte) error {
	channel := streamChannelPrefix + sessionID.String()
	body, err := json.Marshal(streamEvent{Origin: origin, Event: event, Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, channel, body).Err()
}

// SubscribeStream subscribes to a session's channel and calls handler for
// each message until the returned cancel function is called.
func (r *RedisPubSub) SubscribeStream(sessionID uuid.UUID, handler func(origin, event string, payload []byte)) (cancel func(), err error) {
	channel := streamChannelPrefix + sessionID.String()
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev streamEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.Warn("bad stream event payload", zap.Error(err))
					continue
				}
				handler(ev.Origin, ev.Event, ev.Data)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
