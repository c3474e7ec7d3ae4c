// Package storage provides the durable client-side key/value store used for
// cart snapshots, the bounded error log and small UI flags.
//
// Values survive process restarts and never expire. The store is backed by
// Redis so that several runtimes for the same visitor see the same state.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Fixed keys used by the storefront runtime.
const (
	// CartKey holds the encoded cart snapshot.
	CartKey = "kodeen_cart"

	// ErrorLogKey holds the bounded list of client error records (plain JSON).
	ErrorLogKey = "error_logs"

	// IntroSeenKey is set once the intro animation has been shown.
	IntroSeenKey = "kodeen_intro_seen"
)

// DefaultPrefix namespaces all local-storage keys in Redis.
const DefaultPrefix = "storefront:local:"

// ErrNotFound is returned when a key is absent.
var ErrNotFound = errors.New("key not found")

// KV is a minimal durable string store.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// RedisKV implements KV on top of Redis strings without expiry.
type RedisKV struct {
	redis  *redis.Client
	prefix string
}

// NewRedisKV creates a Redis backed KV. An empty prefix selects DefaultPrefix.
func NewRedisKV(redisClient *redis.Client, prefix string) *RedisKV {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisKV{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Get returns the raw value stored under key.
func (s *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := s.redis.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set stores value under key with no TTL.
func (s *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := s.redis.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *RedisKV) Remove(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// IntroSeen reports whether the intro animation flag is set.
// Any read failure counts as "not seen".
func IntroSeen(ctx context.Context, kv KV) bool {
	val, err := kv.Get(ctx, IntroSeenKey)
	return err == nil && val == "true"
}

// MarkIntroSeen records that the intro animation has been shown.
func MarkIntroSeen(ctx context.Context, kv KV) error {
	return kv.Set(ctx, IntroSeenKey, "true")
}
