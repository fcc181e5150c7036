package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key written by the relay so ClearAll can
// flush relay entries without touching other tenants of the same Redis.
const DefaultNamespace = "chatrelay:"

// Redis is a Cache backed by a Redis server.
type Redis struct {
	client    *redis.Client
	namespace string
	hits      atomic.Int64
	misses    atomic.Int64
}

// RedisOptions configures NewRedis. Zero values fall back to sensible
// defaults (localhost:6379, DB 0, DefaultNamespace).
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: connect %s: %v", ErrUnavailable, opts.Addr, err)
	}

	return &Redis{client: client, namespace: opts.Namespace}, nil
}

func (r *Redis) key(k string) string {
	return r.namespace + k
}

// Get retrieves a cached value. A redis.Nil reply is a miss, not an error.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.misses.Add(1)
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}
	r.hits.Add(1)
	return val, true, nil
}

// Set stores value with the given TTL, overwriting any existing entry.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes a single key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: delete: %v", ErrUnavailable, err)
	}
	return nil
}

// ClearAll deletes every key under the relay namespace using SCAN+DEL and
// returns the number of entries removed.
func (r *Redis) ClearAll(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		cleared int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.namespace+"*", 100).Result()
		if err != nil {
			return cleared, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return cleared, fmt.Errorf("%w: del: %v", ErrUnavailable, err)
			}
			cleared += int(n)
		}
		cursor = next
		if cursor == 0 {
			return cleared, nil
		}
	}
}

// Stats returns process-wide hit/miss counters and the live namespace key
// count.
func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Hits: r.hits.Load(), Misses: r.misses.Load()}

	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.namespace+"*", 100).Result()
		if err != nil {
			return stats, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
		}
		stats.Keys += int64(len(keys))
		cursor = next
		if cursor == 0 {
			return stats, nil
		}
	}
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
