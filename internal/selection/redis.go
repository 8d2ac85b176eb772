package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "skovkrogen:selection:"

// RedisStore shares selections between API replicas. Entries expire after
// the idle timeout.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &RedisStore{client: client, timeout: timeout}
}

func (s *RedisStore) key(viewer string) string {
	return redisKeyPrefix + viewer
}

// Get returns the viewer's selection.
func (s *RedisStore) Get(ctx context.Context, viewer string) (Selection, error) {
	val, err := s.client.Get(ctx, s.key(viewer)).Result()
	if errors.Is(err, redis.Nil) {
		return Empty(), nil
	}
	if err != nil {
		return Empty(), fmt.Errorf("get selection: %w", err)
	}
	var sel Selection
	if err := json.Unmarshal([]byte(val), &sel); err != nil {
		return Empty(), fmt.Errorf("decode selection: %w", err)
	}
	return sel.normalized(), nil
}

// Put stores sel and refreshes its expiry.
func (s *RedisStore) Put(ctx context.Context, viewer string, sel Selection) error {
	data, err := json.Marshal(sel.normalized())
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(viewer), data, s.timeout).Err(); err != nil {
		return fmt.Errorf("put selection: %w", err)
	}
	return nil
}

// Clear removes a selection.
func (s *RedisStore) Clear(ctx context.Context, viewer string) error {
	if err := s.client.Del(ctx, s.key(viewer)).Err(); err != nil {
		return fmt.Errorf("clear selection: %w", err)
	}
	return nil
}
