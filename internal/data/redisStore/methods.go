package redisStore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func (s *Store) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return s.client.Set(ctx, key, value, expiration).Err()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	return s.client.Get(ctx, key).Result()
}

func (s *Store) GetBytes(ctx context.Context, key string) ([]byte, error) {
	return s.client.Get(ctx, key).Bytes()
}

// MGet returns the values of keys in order; a missing key comes back as "" with ok false.
func (s *Store) MGet(ctx context.Context, keys ...string) ([]string, []bool, error) {
	if len(keys) == 0 {
		return nil, nil, nil
	}
	raw, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, err
	}
	values := make([]string, len(raw))
	found := make([]bool, len(raw))
	for i, v := range raw {
		if str, ok := v.(string); ok {
			values[i] = str
			found[i] = true
		}
	}
	return values, found, nil
}

func (s *Store) IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// ListPush appends to a list and refreshes its expiry in one round trip.
func (s *Store) ListPush(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, value)
	if expiration > 0 {
		pipe.Expire(ctx, key, expiration)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) ListGetAll(ctx context.Context, key string) ([]string, error) {
	return s.client.LRange(ctx, key, 0, -1).Result()
}
