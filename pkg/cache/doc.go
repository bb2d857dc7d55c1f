// Package cache stores CMS proxy responses in two layers: an in-process
// expirable LRU and an optional shared Redis.
//
// Entries carry the validators the proxy sent (ETag, Last-Modified) so a
// stale entry can be revalidated with a conditional request. A 304 Not
// Modified answer refreshes the entry's expiry instead of replacing it.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, cache.DefaultConfig())
//
//	key := cache.CacheKey{
//		Collection:  "videos",
//		Path:        "/items",
//		QueryParams: url.Values{"offset": {"0"}, "limit": {"24"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the proxy, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(resp.StatusCode(), resp.Header(), resp.Body()))
//	}
//
// A nil Redis client keeps the manager memory-only.
//
// # Metrics
//
//   - cms_cache_hits_total{layer="memory"|"redis"}
//   - cms_cache_misses_total
//   - cms_cache_size_bytes{layer}
//   - cms_304_responses_total
//   - cms_cache_errors_total{operation}
package cache
