/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus provides a Redis-backed distributed event bus so queue and
// policy changes propagate between instances. It degrades to the in-process
// bus when Redis is unavailable.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pawmarkhq/placement/internal/events"
)

// channelPrefix namespaces Redis pub/sub channels.
const channelPrefix = "pawmark.events."

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	RetryInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		PoolSize:      10,
		MinIdleConns:  2,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		RetryInterval: 30 * time.Second,
	}
}

// RedisBus bridges the in-process bus across instances via Redis pub/sub.
type RedisBus struct {
	client *redis.Client
	logger zerolog.Logger
	local  *events.Bus
	nodeID string

	mu       sync.RWMutex
	channels map[events.EventType]*redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	useFallback bool
	failCount   int
	maxFails    int
	lastCheck   time.Time
	retryEvery  time.Duration
}

// NewRedisBus creates a Redis-backed event bus wrapping the given local bus.
// When Redis is unreachable the bus starts in fallback mode and retries
// periodically.
func NewRedisBus(cfg RedisConfig, nodeID string, local *events.Bus, logger zerolog.Logger) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	rb := &RedisBus{
		client:     client,
		logger:     logger.With().Str("component", "eventbus").Logger(),
		local:      local,
		nodeID:     nodeID,
		channels:   make(map[events.EventType]*redis.PubSub),
		ctx:        ctx,
		cancel:     cancel,
		maxFails:   cfg.MaxFailures,
		retryEvery: cfg.RetryInterval,
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		rb.logger.Warn().Err(err).Msg("Redis connection failed, using in-memory fallback")
		rb.useFallback = true
		rb.lastCheck = time.Now()
	} else {
		rb.logger.Info().Str("addr", cfg.Addr).Msg("Redis event bus initialized")
	}

	rb.wg.Add(1)
	go rb.reconnectLoop()

	return rb
}

// Relay mirrors the given event types from Redis into the local bus, so
// events published by other instances reach this instance's subscribers.
func (rb *RedisBus) Relay(types ...events.EventType) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for _, eventType := range types {
		if _, exists := rb.channels[eventType]; exists {
			continue
		}
		pubsub := rb.client.Subscribe(rb.ctx, channelPrefix+string(eventType))
		rb.channels[eventType] = pubsub

		rb.wg.Add(1)
		go rb.receive(eventType, pubsub)
	}
}

// Publish delivers locally and broadcasts to other instances.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.local.Publish(eventType, payload)

	rb.mu.RLock()
	fallback := rb.useFallback
	rb.mu.RUnlock()
	if fallback {
		return
	}

	data, err := json.Marshal(wireMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		NodeID:    rb.nodeID,
	})
	if err != nil {
		rb.logger.Error().Err(err).Msg("marshal bus message failed")
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()

	if err := rb.client.Publish(ctx, channelPrefix+string(eventType), data).Err(); err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("Redis publish failed")
		rb.handleFailure()
		return
	}

	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()
}

// receive pumps Redis messages for one event type into the local bus.
func (rb *RedisBus) receive(eventType events.EventType, pubsub *redis.PubSub) {
	defer rb.wg.Done()

	ch := pubsub.Channel()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				rb.logger.Warn().Str("event_type", string(eventType)).Msg("Redis channel closed")
				rb.handleFailure()
				return
			}

			var wire wireMessage
			if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
				rb.logger.Error().Err(err).Msg("unmarshal bus message failed")
				continue
			}

			// Publish already delivered locally on the source node.
			if wire.NodeID == rb.nodeID {
				continue
			}

			rb.local.Publish(eventType, wire.Payload)
		}
	}
}

// reconnectLoop periodically retries Redis while in fallback mode.
func (rb *RedisBus) reconnectLoop() {
	defer rb.wg.Done()

	ticker := time.NewTicker(rb.retryEvery)
	defer ticker.Stop()

	for {
		select {
		case <-rb.ctx.Done():
			return
		case <-ticker.C:
			if err := rb.tryReconnect(); err != nil {
				rb.logger.Debug().Err(err).Msg("redis reconnect attempt failed")
			}
		}
	}
}

func (rb *RedisBus) tryReconnect() error {
	rb.mu.Lock()
	if !rb.useFallback {
		rb.mu.Unlock()
		return nil
	}
	rb.lastCheck = time.Now()
	rb.mu.Unlock()

	ctx, cancel := context.WithTimeout(rb.ctx, 5*time.Second)
	defer cancel()

	if err := rb.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis still unavailable: %w", err)
	}

	rb.mu.Lock()
	rb.useFallback = false
	rb.failCount = 0
	rb.mu.Unlock()

	rb.logger.Info().Msg("reconnected to Redis, disabling fallback")
	return nil
}

// handleFailure flips to fallback mode after repeated Redis errors.
func (rb *RedisBus) handleFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.failCount++
	if rb.failCount >= rb.maxFails && !rb.useFallback {
		rb.logger.Warn().Int("fail_count", rb.failCount).Msg("Redis failure threshold reached, switching to in-memory fallback")
		rb.useFallback = true
		rb.lastCheck = time.Now()
	}
}

// Close stops receivers and releases the Redis connection.
func (rb *RedisBus) Close() error {
	rb.cancel()
	rb.wg.Wait()

	rb.mu.Lock()
	for _, pubsub := range rb.channels {
		_ = pubsub.Close()
	}
	rb.channels = make(map[events.EventType]*redis.PubSub)
	rb.mu.Unlock()

	if rb.client != nil {
		return rb.client.Close()
	}
	return nil
}

// wireMessage is the Redis pub/sub payload envelope.
type wireMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}
