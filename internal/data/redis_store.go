package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/jobstream/internal/domain/model"
)

// RedisStore is the typed adapter over the shared key-value store. The client is
// constructed once at process start and injected; go-redis owns pooling and
// redial, while every non-blocking operation is retried on transient errors.
type RedisStore struct {
	client redis.UniversalClient
	retry  RetryPolicy
}

// NewRedisStore creates a new store adapter around an existing client.
func NewRedisStore(client redis.UniversalClient, retry RetryPolicy) *RedisStore {
	return &RedisStore{client: client, retry: retry.normalized()}
}

// Client exposes the underlying client for callers that need raw commands (admin tooling).
//
//nolint:ireturn // the store is constructed from a UniversalClient and hands back the same interface.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

// PushQueue appends value to the tail of the list at key.
func (s *RedisStore) PushQueue(ctx context.Context, key, value string) error {
	return s.retry.Do(ctx, "rpush", func(ctx context.Context) error {
		return s.client.RPush(ctx, key, value).Err()
	})
}

// BlockingPop removes and returns the head of the list at key, waiting up to timeout.
// It returns model.ErrQueueEmpty when the timeout elapses. It is not retried: a
// reply lost after the server popped would otherwise claim a second entry.
func (s *RedisStore) BlockingPop(ctx context.Context, key string, timeout time.Duration) (string, error) {
	res, err := s.client.BLPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", model.ErrQueueEmpty
	}
	if err != nil {
		return "", fmt.Errorf("redis blpop: %w", err)
	}
	// BLPOP replies with [key, value].
	if len(res) != 2 {
		return "", fmt.Errorf("redis blpop: unexpected reply length %d", len(res))
	}
	return res[1], nil
}

// HashSet writes fields into the hash at key and refreshes its TTL.
func (s *RedisStore) HashSet(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	return s.retry.Do(ctx, "hset", func(ctx context.Context) error {
		_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, fields)
			if ttl > 0 {
				p.Expire(ctx, key, ttl)
			}
			return nil
		})
		return err
	})
}

// HashGetAll returns every field of the hash at key. A missing key yields an empty map.
func (s *RedisStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	var out map[string]string
	err := s.retry.Do(ctx, "hgetall", func(ctx context.Context) error {
		var err error
		out, err = s.client.HGetAll(ctx, key).Result()
		return err
	})
	return out, err
}

// ListAppend appends value to the list at key, refreshes its TTL, and returns the new length.
// Retrying a plain append can duplicate an element; single-writer streams use
// JobStore.AppendChunk, which is index-guarded.
func (s *RedisStore) ListAppend(ctx context.Context, key, value string, ttl time.Duration) (int64, error) {
	var n int64
	err := s.retry.Do(ctx, "rpush", func(ctx context.Context) error {
		var push *redis.IntCmd
		_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			push = p.RPush(ctx, key, value)
			if ttl > 0 {
				p.Expire(ctx, key, ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}
		n = push.Val()
		return nil
	})
	return n, err
}

// ListRange returns list elements between start and stop inclusive (negative indexes count from the tail).
func (s *RedisStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var out []string
	err := s.retry.Do(ctx, "lrange", func(ctx context.Context) error {
		var err error
		out, err = s.client.LRange(ctx, key, start, stop).Result()
		return err
	})
	return out, err
}

// ListLength returns the length of the list at key (0 if missing).
func (s *RedisStore) ListLength(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.retry.Do(ctx, "llen", func(ctx context.Context) error {
		var err error
		n, err = s.client.LLen(ctx, key).Result()
		return err
	})
	return n, err
}

// SetWithExpiry stores value at key with the given TTL.
func (s *RedisStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.retry.Do(ctx, "set", func(ctx context.Context) error {
		return s.client.Set(ctx, key, value, ttl).Err()
	})
}

// Get retrieves the value at key. Returns nil, nil if the key does not exist.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.retry.Do(ctx, "get", func(ctx context.Context) error {
		val, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			out = nil
			return nil
		}
		if err != nil {
			return err
		}
		out = val
		return nil
	})
	return out, err
}

// Delete removes keys and returns how many existed.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	var n int64
	err := s.retry.Do(ctx, "del", func(ctx context.Context) error {
		var err error
		n, err = s.client.Del(ctx, keys...).Result()
		return err
	})
	return n, err
}

// Exists reports whether key exists.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := s.retry.Do(ctx, "exists", func(ctx context.Context) error {
		var err error
		n, err = s.client.Exists(ctx, key).Result()
		return err
	})
	return n > 0, err
}

// Health performs a single ping without retries.
func (s *RedisStore) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
