// Package cache provides Redis-based caching of the latest per-symbol
// analysis snapshots so subscriber replay survives restarts.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// keySignalCheck holds one symbol's latest signal_check payload.
const keySignalCheck = "signal_check:%s"

// snapshotTTL bounds staleness after a symbol leaves the watchlist.
const snapshotTTL = 24 * time.Hour

// Config holds Redis connection settings. An empty address disables the
// cache entirely.
type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// SnapshotCache stores the latest signal_check payload per symbol. All
// methods are safe on a nil receiver, which callers get when Redis is not
// configured or unreachable; the pipeline then simply runs without warm
// replay.
type SnapshotCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewSnapshotCache connects to Redis. Returns nil (no error) when the
// cache is disabled; connection failure is degraded to a warning because
// the cache is an optimization, never a dependency.
func NewSnapshotCache(cfg Config, logger zerolog.Logger) *SnapshotCache {
	logger = logger.With().Str("component", "snapshot-cache").Logger()
	if cfg.Address == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Address).Msg("Redis unavailable, snapshot cache disabled")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Address).Msg("Snapshot cache connected")
	return &SnapshotCache{client: client, logger: logger}
}

// StoreCheck saves the latest signal_check payload for a symbol.
func (c *SnapshotCache) StoreCheck(ctx context.Context, symbol string, payload map[string]interface{}) {
	if c == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Cannot marshal snapshot")
		return
	}
	key := fmt.Sprintf(keySignalCheck, symbol)
	if err := c.client.Set(ctx, key, data, snapshotTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Cannot cache snapshot")
	}
}

// LoadCheck returns the cached payload for one symbol, nil if absent.
func (c *SnapshotCache) LoadCheck(ctx context.Context, symbol string) map[string]interface{} {
	if c == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, fmt.Sprintf(keySignalCheck, symbol)).Bytes()
	if err != nil {
		return nil
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	return payload
}

// DeleteCheck drops a symbol's cached payload, used when it leaves the
// watchlist.
func (c *SnapshotCache) DeleteCheck(ctx context.Context, symbol string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, fmt.Sprintf(keySignalCheck, symbol)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Cannot drop snapshot")
	}
}

// Close releases the Redis connection.
func (c *SnapshotCache) Close() {
	if c == nil {
		return
	}
	_ = c.client.Close()
}
