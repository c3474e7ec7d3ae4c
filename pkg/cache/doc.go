// Package cache provides named response cache partitions with a Redis backend.
//
// A partition is a durable map from (method, URL) to a stored HTTP response.
// Partitions are created on first Open and remembered in creation order, so a
// cross-partition Match searches the oldest partition first.
//
// Features:
//
// - Last-write-wins Put per key
// - All-or-nothing AddAll (single MULTI/EXEC)
// - Optional LRU cap per partition (WithMaxEntries)
// - Prometheus metrics for observability
// - Deterministic, normalised cache keys
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	storage, err := cache.NewStorage(redisClient, "")
//	if err != nil {
//		return err
//	}
//
//	static, err := storage.Open(ctx, "kodeen-static-v1")
//	if err != nil {
//		return err
//	}
//
//	entry, err := static.Match(ctx, cache.KeyFromRequest(req))
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from network
//	}
//
// # HTTP Response Caching
//
//	entry, err := cache.ResponseToEntry(resp)
//	if err != nil {
//		return err
//	}
//	if err := dynamic.Put(ctx, cache.KeyFromRequest(req), entry); err != nil {
//		return err
//	}
//
//	// later
//	resp = cache.EntryToResponse(entry, req)
//
// # Metrics
//
//   - storefront_cache_hits_total{partition} - Cache hits
//   - storefront_cache_misses_total - Cache misses
//   - storefront_cache_errors_total{operation} - Cache operation errors
//   - storefront_cache_evictions_total - LRU evictions
package cache
