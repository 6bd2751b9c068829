package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"signal-sessions/common"
	"signal-sessions/configs"

	"github.com/redis/go-redis/v9"
)

// RedisMailbox keeps one list per recipient under configs.ServerMessageQueueKey.
type RedisMailbox struct {
	client *redis.Client
}

func NewRedisMailbox(client *redis.Client) *RedisMailbox {
	return &RedisMailbox{client: client}
}

// DialRedis connects to addr and checks the connection before returning.
func DialRedis(ctx context.Context, addr string) (*RedisMailbox, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return NewRedisMailbox(client), nil
}

func queueKey(recipientID string) string {
	return fmt.Sprintf(configs.ServerMessageQueueKey, recipientID)
}

func (m *RedisMailbox) Push(ctx context.Context, env common.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return m.client.RPush(ctx, queueKey(env.RecipientID), data).Err()
}

func (m *RedisMailbox) Drain(ctx context.Context, recipientID string) ([]common.Envelope, error) {
	key := queueKey(recipientID)

	var lrange *redis.StringSliceCmd
	if _, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	}); err != nil {
		return nil, err
	}

	out := make([]common.Envelope, 0, len(lrange.Val()))
	for _, raw := range lrange.Val() {
		var env common.Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return out, fmt.Errorf("decoding queued envelope for %s: %w", recipientID, err)
		}
		out = append(out, env)
	}
	return out, nil
}

func (m *RedisMailbox) Close() error {
	return m.client.Close()
}
