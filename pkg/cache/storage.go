package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrNilClient is returned by NewStorage without a Redis client
	ErrNilClient = errors.New("redis client cannot be nil")
)

// DefaultPrefix namespaces all cache keys in Redis.
const DefaultPrefix = "sw:"

// Storage is the set of named cache partitions.
//
// Redis layout (prefix "sw:"):
//
//	sw:partitions        ZSET  name -> creation sequence
//	sw:partitions:seq    STRING creation counter
//	sw:partitions:caps   HASH  name -> max entries (capped partitions only)
//	sw:cache:<name>      HASH  key string -> JSON CacheEntry
//	sw:lru:<name>        ZSET  key string -> access clock
//	sw:clock:<name>      STRING access counter
type Storage struct {
	redis  *redis.Client
	prefix string
}

// NewStorage creates partition storage on redisClient. An empty prefix
// selects DefaultPrefix.
func NewStorage(redisClient *redis.Client, prefix string) (*Storage, error) {
	if redisClient == nil {
		return nil, ErrNilClient
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Storage{
		redis:  redisClient,
		prefix: prefix,
	}, nil
}

func (s *Storage) registryKey() string {
	return s.prefix + "partitions"
}

func (s *Storage) capsKey() string {
	return s.prefix + "partitions:caps"
}

// Open returns the partition called name, creating it if needed.
//
// A cap set with WithMaxEntries is recorded with the partition, so later
// lookups through Match keep its recency current. Opening a capped
// partition without WithMaxEntries adopts the recorded cap.
func (s *Storage) Open(ctx context.Context, name string, opts ...PartitionOption) (*Partition, error) {
	if name == "" {
		return nil, fmt.Errorf("partition name cannot be empty")
	}

	exists, err := s.Has(ctx, name)
	if err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return nil, err
	}
	if !exists {
		seq, err := s.redis.Incr(ctx, s.registryKey()+":seq").Result()
		if err != nil {
			CacheErrors.WithLabelValues("open").Inc()
			return nil, fmt.Errorf("redis incr: %w", err)
		}
		// NX keeps the original position if a concurrent Open won the race
		if err := s.redis.ZAddNX(ctx, s.registryKey(), redis.Z{Score: float64(seq), Member: name}).Err(); err != nil {
			CacheErrors.WithLabelValues("open").Inc()
			return nil, fmt.Errorf("redis zadd: %w", err)
		}
	}

	p := s.partition(name, opts...)
	if p.maxEntries > 0 {
		if err := s.redis.HSet(ctx, s.capsKey(), name, p.maxEntries).Err(); err != nil {
			CacheErrors.WithLabelValues("open").Inc()
			return nil, fmt.Errorf("redis hset: %w", err)
		}
		return p, nil
	}

	recorded, err := s.redis.HGet(ctx, s.capsKey(), name).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		CacheErrors.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("redis hget: %w", err)
	}
	p.maxEntries = recorded
	return p, nil
}

// caps returns the recorded cap of every capped partition.
func (s *Storage) caps(ctx context.Context) (map[string]int, error) {
	raw, err := s.redis.HGetAll(ctx, s.capsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	caps := make(map[string]int, len(raw))
	for name, v := range raw {
		if n, err := strconv.Atoi(v); err == nil {
			caps[name] = n
		}
	}
	return caps, nil
}

func (s *Storage) partition(name string, opts ...PartitionOption) *Partition {
	p := &Partition{
		redis:    s.redis,
		name:     name,
		entries:  s.prefix + "cache:" + name,
		lru:      s.prefix + "lru:" + name,
		clockKey: s.prefix + "clock:" + name,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Keys lists partition names in creation order.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	names, err := s.redis.ZRange(ctx, s.registryKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	return names, nil
}

// Has reports whether a partition called name exists.
func (s *Storage) Has(ctx context.Context, name string) (bool, error) {
	err := s.redis.ZScore(ctx, s.registryKey(), name).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis zscore: %w", err)
	}
	return true, nil
}

// Delete removes the partition called name with all its entries.
// It reports whether the partition existed.
func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	p := s.partition(name)

	var removed *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, s.registryKey(), name)
		pipe.HDel(ctx, s.capsKey(), name)
		pipe.Del(ctx, p.entries, p.lru, p.clockKey)
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("delete partition %s: %w", name, err)
	}

	return removed.Val() > 0, nil
}

// Match searches every partition in creation order and returns the first
// hit. A hit in a capped partition counts as a use for eviction.
func (s *Storage) Match(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	names, err := s.Keys(ctx)
	if err != nil {
		CacheErrors.WithLabelValues("match").Inc()
		return nil, err
	}
	caps, err := s.caps(ctx)
	if err != nil {
		CacheErrors.WithLabelValues("match").Inc()
		return nil, err
	}

	for _, name := range names {
		entry, err := s.partition(name, WithMaxEntries(caps[name])).match(ctx, key)
		if errors.Is(err, ErrCacheMiss) {
			continue
		}
		if err != nil {
			return nil, err
		}
		CacheHits.WithLabelValues(name).Inc()
		return entry, nil
	}

	CacheMisses.Inc()
	return nil, ErrCacheMiss
}
