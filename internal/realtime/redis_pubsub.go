package realtime

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
	channelPrefix  = "interview:"
	publishTimeout = 5 * time.Second
)

// redisPayload is the message published to Redis for cross-instance fan-out.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	At    int64           `json:"at"`
}

// RedisPubSub implements RoomPublisher and RoomSubscriber on Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for interview rooms.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// RoomChannel is the Redis channel for an interview room.
func RoomChannel(roomID uuid.UUID) string {
	return channelPrefix + roomID.String()
}

// PublishRoomEvent publishes an event to the room's channel.
func (r *RedisPubSub) PublishRoomEvent(roomID uuid.UUID, event string, payload []byte) error {
	body, err := json.Marshal(redisPayload{Event: event, Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, RoomChannel(roomID), body).Err()
}

// SubscribeRoom calls handler for each event on the room's channel until
// cancel is called.
func (r *RedisPubSub) SubscribeRoom(roomID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, RoomChannel(roomID))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
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
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					r.logger.Debug("drop malformed room event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	return cancelCtx, nil
}
