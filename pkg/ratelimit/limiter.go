package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the attempt limiter.
var (
	rateLimitBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_rate_limit_blocks_total",
		Help: "Total number of attempts rejected by the sliding-window limiter",
	}, []string{"key"})
)

// allowScript prunes attempts older than the window and records a new one
// unless the window is full. Scores are unix milliseconds.
//
// KEYS[1] window set, ARGV: now, window, max, member. Returns 1 if allowed.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= max then
	return 0
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// Limiter tracks attempts per key in Redis sorted sets.
type Limiter struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewLimiter creates a new attempt limiter.
func NewLimiter(redisClient *redis.Client, logger zerolog.Logger) *Limiter {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Limiter{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

func redisKey(key string) string {
	return RedisKeyPrefix + key
}

// Allow records an attempt for key and reports whether it is allowed.
// An attempt is rejected when max attempts already fall inside the sliding
// window; rejected attempts are not recorded.
func (l *Limiter) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, fmt.Errorf("window must be positive (got %v)", window)
	}

	now := l.now().UnixMilli()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	allowed, err := allowScript.Run(ctx, l.redis, []string{redisKey(key)},
		now, window.Milliseconds(), max, member).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}

	if allowed == 0 {
		rateLimitBlocksTotal.WithLabelValues(key).Inc()
		l.logger.Warn().
			Str("key", key).
			Int("max", max).
			Dur("window", window).
			Msg("Attempt rejected by rate limiter")
		return false, nil
	}

	return true, nil
}

// State returns the attempts currently inside the window for key.
func (l *Limiter) State(ctx context.Context, key string, max int, window time.Duration) (*WindowState, error) {
	now := l.now()
	lower := "(" + strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	attempts, err := l.redis.ZRangeByScoreWithScores(ctx, redisKey(key), &redis.ZRangeBy{
		Min: lower,
		Max: "+inf",
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get window state: %w", err)
	}

	state := &WindowState{
		Attempts: len(attempts),
		Max:      max,
	}
	if len(attempts) > 0 {
		oldest := time.UnixMilli(int64(attempts[0].Score))
		state.ResetAt = oldest.Add(window)
	}

	return state, nil
}

// Reset forgets every attempt recorded for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("reset rate limit %s: %w", key, err)
	}
	return nil
}
