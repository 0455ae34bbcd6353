package viewstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed Store. Entries are JSON objects of
// parameter name to values stored with the configured TTL.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a store on client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Get reads the stored params.
func (s *RedisStore) Get(ctx context.Context, subject, listKey string) (url.Values, error) {
	key := subjectKey(subject, listKey)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("viewstate: redis get %q: %w", key, err)
	}
	var params url.Values
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("viewstate: decode %q: %w", key, err)
	}
	return params, nil
}

// Set writes params with ttl.
func (s *RedisStore) Set(ctx context.Context, subject, listKey string, params url.Values, ttl time.Duration) error {
	key := subjectKey(subject, listKey)
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("viewstate: encode %q: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("viewstate: redis set %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry.
func (s *RedisStore) Delete(ctx context.Context, subject, listKey string) error {
	key := subjectKey(subject, listKey)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("viewstate: redis del %q: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
