package executor

import (
	"context"

	"github.com/go-redis/redis"
)

// ActionExecutedChannel receives one JSON message per attempted action.
const ActionExecutedChannel = "device_scheduler.action_executed"

// MessageBroker abstracts message distribution - can be replaced later
type MessageBroker interface {
	Publish(ctx context.Context, channel string, message []byte) (int64, error)
}

// RedisBroker implements MessageBroker using Redis pub/sub
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Publish returns the number of subscribers that received the message.
func (r *RedisBroker) Publish(ctx context.Context, channel string, message []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return r.client.WithContext(ctx).Publish(channel, message).Result()
}
