package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/edgegw/internal/config"
)

// redisKeyPrefix namespaces gateway cache keys so Clear never touches
// other data in a shared Redis database.
const redisKeyPrefix = "edgegw:cache:"

// redisEnvelope wraps the stored value with its write time so Get can
// report the entry's age.
type redisEnvelope struct {
	StoredAt time.Time `json:"storedAt"`
	Value    []byte    `json:"value"`
}

// RedisStore is a Redis-backed store. Expiry is delegated to Redis key
// TTLs.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store from config.
func NewRedisStore(cfg *config.RedisConfig) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// NewRedisStoreWithClient wraps an existing client. Used in tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the value and its age.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, 0, ErrCacheMiss
	}
	if err != nil {
		return nil, 0, err
	}

	var envelope redisEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, 0, ErrCacheCorrupt
	}

	return envelope.Value, time.Since(envelope.StoredAt), nil
}

// Set stores the value with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := json.Marshal(redisEnvelope{
		StoredAt: time.Now(),
		Value:    value,
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err()
}

// Delete removes a single key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKeyPrefix+key).Err()
}

// DeletePrefix removes every key with the given prefix.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	return s.deleteMatching(ctx, redisKeyPrefix+prefix+"*")
}

// DeleteContaining removes every key containing the given substring.
func (s *RedisStore) DeleteContaining(ctx context.Context, substr string) (int, error) {
	return s.deleteMatching(ctx, redisKeyPrefix+"*"+substr+"*")
}

// Clear removes all gateway cache keys.
func (s *RedisStore) Clear(ctx context.Context) (int, error) {
	return s.deleteMatching(ctx, redisKeyPrefix+"*")
}

// Len returns the number of gateway cache keys.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count, iter.Err()
}

// Close releases the client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) deleteMatching(ctx context.Context, pattern string) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, iter.Err()
}
