package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"gtfsviewer/internal/viewer"
)

// RedisCache keeps the selection of each session so that a browser coming
// back after a restart finds its dataset, route and time again.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return newRedisCache(client, ttl, logger), nil
}

func newRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "gtfsviewer:",
		ttl:    ttl,
		logger: logger.With("component", "redis_cache"),
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache) SaveSelection(ctx context.Context, sessionID string, snap viewer.SelectionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	start := time.Now()
	if err := c.client.Set(ctx, c.key(KeySelection(sessionID)), data, c.ttl).Err(); err != nil {
		c.logger.Error("cache set failed", "session_id", sessionID, "error", err)
		return err
	}
	c.logger.Debug("selection saved",
		"session_id", sessionID,
		"ttl", c.ttl,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// LoadSelection returns the stored selection; found is false on a miss.
func (c *RedisCache) LoadSelection(ctx context.Context, sessionID string) (snap viewer.SelectionSnapshot, found bool, err error) {
	val, err := c.client.Get(ctx, c.key(KeySelection(sessionID))).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("cache miss", "session_id", sessionID)
		return snap, false, nil
	}
	if err != nil {
		c.logger.Error("cache get failed", "session_id", sessionID, "error", err)
		return snap, false, err
	}
	if err := json.Unmarshal(val, &snap); err != nil {
		return snap, false, fmt.Errorf("json unmarshal: %w", err)
	}
	return snap, true, nil
}

func (c *RedisCache) DeleteSelection(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, c.key(KeySelection(sessionID))).Err()
}
