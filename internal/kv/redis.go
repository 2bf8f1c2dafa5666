package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps items as plain Redis strings under a namespace prefix so
// the same Redis instance can also serve the rate limiter.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore wraps an already connected client.  An empty prefix
// defaults to "kv:".
func NewRedisStore(rdb *redis.Client, prefix string) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = "kv:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (s *RedisStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) SetItem(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) RemoveItem(ctx context.Context, key string) error {
	return s.MultiRemove(ctx, []string{key})
}

// MultiSet uses MULTI/EXEC so the batch lands together.
func (s *RedisStore) MultiSet(ctx context.Context, pairs []Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range pairs {
			pipe.Set(ctx, s.prefix+p.Key, p.Value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis multi set: %w", err)
	}
	return nil
}

func (s *RedisStore) MultiRemove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	if err := s.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// GetAllKeys walks the namespace with SCAN; KEYS would block the server.
func (s *RedisStore) GetAllKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}
