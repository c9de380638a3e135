// Package sink mirrors coordinator state to external systems. Failures here
// never affect delivery to connected sessions.
package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPresence keeps a Redis set equal to the online user snapshot and
// announces each snapshot on the "<key>:updates" channel.
type RedisPresence struct {
	client *redis.Client
	key    string
}

func NewRedisPresence(addr, key string) *RedisPresence {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisPresence{client: rdb, key: key}
}

func (p *RedisPresence) Channel() string {
	return p.key + ":updates"
}

func (p *RedisPresence) PublishPresence(ctx context.Context, userIds []string) error {
	payload, err := json.Marshal(userIds)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}

	members := make([]any, len(userIds))
	for i, id := range userIds {
		members[i] = id
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, p.key)
		if len(members) > 0 {
			pipe.SAdd(ctx, p.key, members...)
		}
		pipe.Publish(ctx, p.Channel(), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror presence to redis: %w", err)
	}

	return nil
}

func (p *RedisPresence) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPresence) Close() error {
	return p.client.Close()
}
