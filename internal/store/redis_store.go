package store

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the Redis-backed Store, preferred over MemoryStore
// whenever redis_addr is configured so idempotency records survive an
// Agent restart.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (r *RedisStore) Lookup(ctx context.Context, key string) ([]byte, bool) {
	result, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("store: redis lookup failed key=%s err=%v", key, err)
		return nil, false
	}
	return result, true
}

func (r *RedisStore) Store(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("store: redis store failed key=%s err=%v", key, err)
	}
}
