package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChannelPrefix namespaces the Redis channels used for fan-out.
const ChannelPrefix = "allocation:"

// RedisPublisher publishes events to Redis so every instance's relay can
// deliver them to its local subscribers.
type RedisPublisher struct {
	client redis.UniversalClient
}

func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.client.Publish(ctx, ChannelPrefix+topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// RedisRelay forwards events from Redis into a local Publisher, usually the Hub.
type RedisRelay struct {
	client redis.UniversalClient
	local  Publisher
	log    *zap.Logger
}

func NewRedisRelay(client redis.UniversalClient, local Publisher, log *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, local: local, log: log}
}

// Run relays messages until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, ChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to redis: %w", err)
	}
	r.log.Info("redis event relay subscribed", zap.String("pattern", ChannelPrefix+"*"))

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *RedisRelay) handle(ctx context.Context, msg *redis.Message) {
	topic := strings.TrimPrefix(msg.Channel, ChannelPrefix)

	var event Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		r.log.Warn("dropping malformed event from redis",
			zap.String("channel", msg.Channel),
			zap.Error(err),
		)
		return
	}

	if err := r.local.Publish(ctx, topic, event); err != nil {
		r.log.Warn("failed to relay event", zap.String("topic", topic), zap.Error(err))
	}
}
