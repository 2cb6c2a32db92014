// Package cache stores response bodies for ETag revalidation.
//
// Entries are keyed by the canonical request URL and hold the payload bytes,
// media type, charset and ETag of a successful response. Freshness is never
// decided by the cache: the client revalidates every hit with If-None-Match
// and only serves the stored bytes on 304 Not Modified.
//
// Every backend implements Store and is safe for concurrent use:
//
//   - MemoryStore: bounded entry count, least-frequently-used eviction,
//     TTL and idle expiry with a periodic sweep
//   - FreecacheStore: byte-bounded in-process store on freecache
//   - RedisStore: shared across processes; idle expiry via GETEX, capacity
//     left to the server's maxmemory policy (allkeys-lfu recommended)
//   - DiskStore: leveldb overflow with byte bound and oldest-first eviction
//   - TieredStore: MemoryStore spilling capacity evictions to a DiskStore
//
// # Basic Usage
//
//	store := cache.NewMemoryStore(cache.DefaultOptions())
//	defer store.Close()
//
//	entry, err := store.Get(ctx, cache.CanonicalURL(req.URL))
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch without If-None-Match
//	} else if err == nil {
//		cache.AddConditionalHeaders(req, entry)
//	}
//
// # Eligibility
//
// Only bodies with an ETag, a media type and at most DefaultMaxEntrySize
// bytes are stored; see Eligible. Stores do not check this themselves.
//
// # Metrics
//
//   - ps_cache_hits_total{backend}
//   - ps_cache_misses_total
//   - ps_cache_entries{backend}
//   - ps_cache_evictions_total{reason}
//   - ps_cache_stores_total
//   - ps_conditional_requests_total
//   - ps_304_responses_total
//   - ps_cache_errors_total{operation}
package cache
