package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PartitionOption configures a Partition.
type PartitionOption func(*Partition)

// WithMaxEntries caps the partition at n entries, evicting the least recently
// used ones on Put. Zero or less means unbounded.
func WithMaxEntries(n int) PartitionOption {
	return func(p *Partition) {
		p.maxEntries = n
	}
}

// Partition is one named cache.
type Partition struct {
	redis      *redis.Client
	name       string
	entries    string
	lru        string
	clockKey   string
	maxEntries int
}

// Name returns the partition name.
func (p *Partition) Name() string {
	return p.name
}

// Match returns the entry stored for key.
// Returns ErrCacheMiss if the key doesn't exist.
func (p *Partition) Match(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	entry, err := p.match(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		CacheMisses.Inc()
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	CacheHits.WithLabelValues(p.name).Inc()
	return entry, nil
}

func (p *Partition) match(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	field := key.String()

	data, err := p.redis.HGet(ctx, p.entries, field).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("match").Inc()
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("match").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if p.maxEntries > 0 {
		if err := p.touch(ctx, field); err != nil {
			// Recency is best effort; the hit still counts
			CacheErrors.WithLabelValues("match").Inc()
		}
	}

	return &entry, nil
}

// touch records an access of field in the LRU set.
func (p *Partition) touch(ctx context.Context, field string) error {
	tick, err := p.redis.Incr(ctx, p.clockKey).Result()
	if err != nil {
		return fmt.Errorf("redis incr: %w", err)
	}
	return p.redis.ZAdd(ctx, p.lru, redis.Z{Score: float64(tick), Member: field}).Err()
}

// Put stores entry under key, replacing any previous entry.
func (p *Partition) Put(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	return p.AddAll(ctx, map[CacheKey]*CacheEntry{key: entry})
}

// AddAll stores every entry in one transaction: either all are written or
// none are.
func (p *Partition) AddAll(ctx context.Context, entries map[CacheKey]*CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	fields := make(map[string][]byte, len(entries))
	for key, entry := range entries {
		if entry == nil {
			return fmt.Errorf("cache entry for %s cannot be nil", key)
		}
		data, err := json.Marshal(entry)
		if err != nil {
			CacheErrors.WithLabelValues("add_all").Inc()
			return fmt.Errorf("marshal cache entry: %w", err)
		}
		fields[key.String()] = data
	}

	tick, err := p.redis.IncrBy(ctx, p.clockKey, int64(len(fields))).Result()
	if err != nil {
		CacheErrors.WithLabelValues("add_all").Inc()
		return fmt.Errorf("redis incr: %w", err)
	}
	tick -= int64(len(fields))

	_, err = p.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for field, data := range fields {
			tick++
			pipe.HSet(ctx, p.entries, field, data)
			pipe.ZAdd(ctx, p.lru, redis.Z{Score: float64(tick), Member: field})
		}
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("add_all").Inc()
		return fmt.Errorf("redis exec: %w", err)
	}

	return p.evict(ctx)
}

// evict drops least recently used entries beyond the cap.
func (p *Partition) evict(ctx context.Context) error {
	if p.maxEntries <= 0 {
		return nil
	}

	size, err := p.redis.ZCard(ctx, p.lru).Result()
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis zcard: %w", err)
	}
	excess := size - int64(p.maxEntries)
	if excess <= 0 {
		return nil
	}

	victims, err := p.redis.ZPopMin(ctx, p.lru, excess).Result()
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis zpopmin: %w", err)
	}

	fields := make([]string, 0, len(victims))
	for _, v := range victims {
		if field, ok := v.Member.(string); ok {
			fields = append(fields, field)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	if err := p.redis.HDel(ctx, p.entries, fields...).Err(); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis hdel: %w", err)
	}

	CacheEvictions.Add(float64(len(fields)))
	return nil
}

// Delete removes the entry for key. It reports whether an entry existed.
func (p *Partition) Delete(ctx context.Context, key CacheKey) (bool, error) {
	field := key.String()

	var removed *redis.IntCmd
	_, err := p.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, p.entries, field)
		pipe.ZRem(ctx, p.lru, field)
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("redis hdel: %w", err)
	}

	return removed.Val() > 0, nil
}

// Len returns the number of stored entries.
func (p *Partition) Len(ctx context.Context) (int64, error) {
	n, err := p.redis.HLen(ctx, p.entries).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen: %w", err)
	}
	return n, nil
}

// Keys lists the normalised key strings stored in the partition.
func (p *Partition) Keys(ctx context.Context) ([]string, error) {
	keys, err := p.redis.HKeys(ctx, p.entries).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hkeys: %w", err)
	}
	return keys, nil
}
