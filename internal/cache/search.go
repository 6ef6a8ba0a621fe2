// Package cache holds the optional Redis-backed read caches. The store
// stays authoritative; every cache miss or cache error falls through to
// it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/models"
)

const (
	connectTimeout = 5 * time.Second
	searchTTL      = 30 * time.Second
)

// Connect initialises a Redis client from a URL and validates connectivity.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// SearchCache keeps recent signal-search results for a short TTL. Signal
// edits are rare relative to nearby-page polling, so a 30s staleness
// window is acceptable. A nil *SearchCache is a valid no-op cache.
type SearchCache struct {
	client *redis.Client
	logger *zap.Logger
}

func NewSearchCache(client *redis.Client, logger *zap.Logger) *SearchCache {
	return &SearchCache{client: client, logger: logger}
}

// Get returns the cached rows for (q, limit), or ok=false on miss or any
// redis error.
func (c *SearchCache) Get(ctx context.Context, q string, limit int) ([]models.SignalMatch, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.key(q, limit)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("search cache get failed", zap.Error(err))
		}
		return nil, false
	}
	var rows []models.SignalMatch
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false
	}
	return rows, true
}

// Put stores rows for (q, limit); failures are logged and ignored.
func (c *SearchCache) Put(ctx context.Context, q string, limit int, rows []models.SignalMatch) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(q, limit), raw, searchTTL).Err(); err != nil {
		c.logger.Debug("search cache put failed", zap.Error(err))
	}
}

func (c *SearchCache) key(q string, limit int) string {
	return fmt.Sprintf("search:signals:%d:%s", limit, strings.ToLower(strings.TrimSpace(q)))
}
