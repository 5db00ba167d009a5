package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the cross-replica run lock and the robots.txt cache.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// TryLock acquires the ingestion run lock for a source. Returns false when
// another run already holds it. The TTL bounds how long a crashed run can
// block its successors.
func (s *RedisStore) TryLock(ctx context.Context, source string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("ingest_lock:%s", source)
	return s.client.SetNX(ctx, key, "1", ttl).Result()
}

// Unlock releases the ingestion run lock for a source.
func (s *RedisStore) Unlock(ctx context.Context, source string) error {
	key := fmt.Sprintf("ingest_lock:%s", source)
	return s.client.Del(ctx, key).Err()
}

// CachedRobots returns a previously cached robots.txt body for an origin.
func (s *RedisStore) CachedRobots(ctx context.Context, origin string) (string, bool, error) {
	key := fmt.Sprintf("robots:%s", origin)
	body, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return body, true, nil
}

// CacheRobots stores a robots.txt body for an origin with a TTL.
func (s *RedisStore) CacheRobots(ctx context.Context, origin, body string, ttl time.Duration) error {
	key := fmt.Sprintf("robots:%s", origin)
	return s.client.Set(ctx, key, body, ttl).Err()
}
