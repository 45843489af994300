package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kestrelchat/kestrel/internal/logging"
)

// redisChannel is the single pub/sub channel every node publishes to
// and subscribes from; fan-out filtering by user id happens on the
// receiving end, not at the Redis layer.
const redisChannel = "kestrel:fanout"

// RedisBus backs Bus with Redis pub/sub, letting every node in a
// cluster observe every publish so a message can reach a recipient
// connected to a different node than the sender.
type RedisBus struct {
	client *redis.Client
	log    logging.Logger
}

func NewRedisBus(client *redis.Client, log logging.Logger) *RedisBus {
	return &RedisBus{client: client, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("broadcast: marshal: %w", err)
	}
	return b.client.Publish(ctx, redisChannel, data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, handler func(Message)) error {
	sub := b.client.Subscribe(ctx, redisChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.log.Warn(ctx, "broadcast: dropping malformed redis payload", "error", err)
				continue
			}
			handler(msg)
		}
	}
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
