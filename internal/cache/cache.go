/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for frequently accessed data.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pawmarkhq/placement/internal/gating"
)

// Default TTL values for different cache types
const (
	DefaultPolicyTTL = 5 * time.Minute
	DefaultQueueTTL  = 1 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeyPolicy = "pawmark:cache:policy:" // + program_id
	KeyQueue  = "pawmark:cache:queue:"  // + program_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL overrides
	PolicyTTL time.Duration
	QueueTTL  time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		PolicyTTL:      DefaultPolicyTTL,
		QueueTTL:       DefaultQueueTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance. When Redis is unreachable the cache comes
// up disabled rather than failing the process.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.PolicyTTL == 0 {
		cfg.PolicyTTL = DefaultPolicyTTL
	}
	if cfg.QueueTTL == 0 {
		cfg.QueueTTL = DefaultQueueTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// cachedPolicy distinguishes "program has no usable policy" from a cache miss.
// Caching the absence keeps a malformed blob from being re-parsed per request.
type cachedPolicy struct {
	Present bool           `json:"present"`
	Policy  *gating.Policy `json:"policy,omitempty"`
}

// GetPolicy retrieves a cached parsed policy for a program. The second return
// reports a cache hit; a hit may still carry a nil policy (absent/malformed).
func (c *Cache) GetPolicy(ctx context.Context, programID string) (*gating.Policy, bool) {
	var entry cachedPolicy
	found, err := c.get(ctx, KeyPolicy+programID, &entry)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("program_id", programID).Bool("present", entry.Present).Msg("policy cache hit")
	if !entry.Present {
		return nil, true
	}
	return entry.Policy, true
}

// SetPolicy caches a parsed policy (or its absence) for a program.
func (c *Cache) SetPolicy(ctx context.Context, programID string, policy *gating.Policy) error {
	c.logger.Debug().Str("program_id", programID).Msg("caching policy")
	return c.set(ctx, KeyPolicy+programID, cachedPolicy{Present: policy != nil, Policy: policy}, c.config.PolicyTTL)
}

// InvalidatePolicy removes a program's cached policy.
func (c *Cache) InvalidatePolicy(ctx context.Context, programID string) error {
	c.logger.Debug().Str("program_id", programID).Msg("invalidating policy cache")
	return c.delete(ctx, KeyPolicy+programID)
}

// CachedQueueEntry is a compact queue snapshot row.
type CachedQueueEntry struct {
	ID          string `json:"id"`
	BuyerID     string `json:"buyer_id"`
	DisplayName string `json:"display_name"`
	Rank        *int   `json:"rank,omitempty"`
	Status      string `json:"status"`
}

// GetQueue retrieves a cached queue snapshot for a program.
func (c *Cache) GetQueue(ctx context.Context, programID string) ([]CachedQueueEntry, bool) {
	var entries []CachedQueueEntry
	found, err := c.get(ctx, KeyQueue+programID, &entries)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("program_id", programID).Int("count", len(entries)).Msg("queue cache hit")
	return entries, true
}

// SetQueue caches a queue snapshot for a program.
func (c *Cache) SetQueue(ctx context.Context, programID string, entries []CachedQueueEntry) error {
	c.logger.Debug().Str("program_id", programID).Int("count", len(entries)).Msg("caching queue")
	return c.set(ctx, KeyQueue+programID, entries, c.config.QueueTTL)
}

// InvalidateQueue removes a program's cached queue snapshot.
func (c *Cache) InvalidateQueue(ctx context.Context, programID string) error {
	c.logger.Debug().Str("program_id", programID).Msg("invalidating queue cache")
	return c.delete(ctx, KeyQueue+programID)
}

// InvalidateProgram removes all caches related to a program.
func (c *Cache) InvalidateProgram(ctx context.Context, programID string) error {
	if err := c.InvalidatePolicy(ctx, programID); err != nil {
		return err
	}
	return c.InvalidateQueue(ctx, programID)
}
