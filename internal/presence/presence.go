// Package presence tracks which users currently hold at least one live
// notification connection. The redis implementation keeps a per-user
// connection counter with a TTL so a crashed process cannot leave users
// marked online forever.
package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker records connection-level online/offline transitions.
type Tracker interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// RedisTracker implements Tracker on a redis counter per user.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTracker(addr, password string, ttl time.Duration) *RedisTracker {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisTracker{client: c, ttl: ttl}
}

func (t *RedisTracker) MarkOnline(ctx context.Context, userID string) error {
	key := presenceKey(userID)
	if err := t.client.Incr(ctx, key).Err(); err != nil {
		return err
	}
	return t.client.Expire(ctx, key, t.ttl).Err()
}

func (t *RedisTracker) MarkOffline(ctx context.Context, userID string) error {
	key := presenceKey(userID)
	n, err := t.client.Decr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return t.client.Del(ctx, key).Err()
	}
	return nil
}

func (t *RedisTracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := t.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *RedisTracker) Close() error { return t.client.Close() }

func presenceKey(userID string) string { return "presence:" + userID }

// NopTracker is used when no redis instance is configured.
type NopTracker struct{}

func (NopTracker) MarkOnline(context.Context, string) error { return nil }

func (NopTracker) MarkOffline(context.Context, string) error { return nil }

func (NopTracker) IsOnline(context.Context, string) (bool, error) { return false, nil }
