package querycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "docseek:query:"
	recentKey = "docseek:recent"
)

// Redis is the durable cache backend.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed store and verifies connectivity.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	return &Redis{client: client}, nil
}

// Health checks connectivity to the Redis server.
func (r *Redis) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := r.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *Redis) UpdateTTL(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Expire(ctx, keyPrefix+key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %s: %w", key, err)
	}
	return nil
}

// PushRecent deduplicates, prepends, and truncates in one pipeline.
func (r *Redis) PushRecent(ctx context.Context, query string) error {
	pipe := r.client.TxPipeline()
	pipe.LRem(ctx, recentKey, 0, query)
	pipe.LPush(ctx, recentKey, query)
	pipe.LTrim(ctx, recentKey, 0, MaxRecent-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis push recent: %w", err)
	}
	return nil
}

func (r *Redis) Recent(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}
	queries, err := r.client.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis recent: %w", err)
	}
	return queries, nil
}
