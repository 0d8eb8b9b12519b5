// Package cache implements domain.SnapshotCache on Redis.
// Snapshots are stored as JSON under a per-user key with a TTL and are
// dropped whenever a session commits for that user. A per-user generation
// counter, bumped on every invalidation, keeps a read that raced a commit
// from writing its older snapshot back.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whispie/whispie/internal/domain"
)

// DefaultTTL bounds how long a snapshot may be served after the last write.
const DefaultTTL = 5 * time.Minute

const (
	prefixProfile    = "whispie:profile:"
	prefixGeneration = "whispie:profile-gen:"

	// generationTTL outlives any snapshot so a counter never resets while a
	// snapshot written under it can still be served.
	generationTTL = 24 * time.Hour
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache is a Redis-backed snapshot cache.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ domain.SnapshotCache = (*RedisCache)(nil)

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return NewRedisCacheWithClient(client, cfg.TTL), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func key(userID string) string {
	return prefixProfile + userID
}

func genKey(userID string) string {
	return prefixGeneration + userID
}

// Get returns the cached snapshot or domain.ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, userID string) (domain.ProfileSnapshot, error) {
	var snap domain.ProfileSnapshot
	b, err := c.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, domain.ErrCacheMiss
	}
	if err != nil {
		return snap, fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		// A snapshot we cannot decode is as good as absent.
		_ = c.client.Del(ctx, key(userID)).Err()
		return domain.ProfileSnapshot{}, domain.ErrCacheMiss
	}
	return snap, nil
}

// Generation returns the user's invalidation counter; 0 if none was recorded.
func (c *RedisCache) Generation(ctx context.Context, userID string) (int64, error) {
	n, err := c.client.Get(ctx, genKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return n, nil
}

// Set stores snap under its user's key with the configured TTL, provided the
// user's generation still equals gen. The check and the write run in one
// WATCH/MULTI transaction; domain.ErrStaleSnapshot means the snapshot was
// invalidated after gen was read.
func (c *RedisCache) Set(ctx context.Context, snap domain.ProfileSnapshot, gen int64) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	gk := genKey(snap.UserID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return domain.ErrStaleSnapshot
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(snap.UserID), b, c.ttl)
			return nil
		})
		return err
	}, gk)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrStaleSnapshot):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return domain.ErrStaleSnapshot
	}
	return fmt.Errorf("redis set: %w", err)
}

// Invalidate drops the user's snapshot and bumps their generation.
func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(userID))
		pipe.Expire(ctx, genKey(userID), generationTTL)
		pipe.Del(ctx, key(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
