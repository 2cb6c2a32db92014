package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested URL was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Eviction reasons reported to OnEvict and ps_cache_evictions_total.
const (
	EvictCapacity = "capacity"
	EvictExpired  = "expired"
	EvictIdle     = "idle"
	EvictSize     = "size"
)

// Store is a cache backend. Get returns ErrCacheMiss for absent or expired
// entries. Set inserts or replaces the entry for entry.URL; a zero StoredAt
// is set to the current time, a non-zero one is kept so that entries moved
// between stores keep their age.
type Store interface {
	Get(ctx context.Context, url string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, url string) error
}

// Options configure the expiry and capacity of a store. Backends ignore
// fields that do not apply to them.
type Options struct {
	// Capacity bounds the number of entries of a MemoryStore.
	Capacity int

	// TTL is the maximum age of an entry since it was stored.
	TTL time.Duration

	// IdleTimeout expires entries not accessed for this long.
	IdleTimeout time.Duration

	// SweepInterval is how often a MemoryStore removes expired entries;
	// zero disables the sweeper.
	SweepInterval time.Duration

	// OnEvict is called outside the store's lock for every entry a
	// MemoryStore evicts.
	OnEvict func(entry *Entry, reason string)
}

// DefaultOptions returns the defaults: 10,000 entries, 1 hour TTL, 20 minute
// idle timeout, swept every minute.
func DefaultOptions() Options {
	return Options{
		Capacity:      10000,
		TTL:           time.Hour,
		IdleTimeout:   20 * time.Minute,
		SweepInterval: time.Minute,
	}
}

func validEntry(e *Entry) error {
	if e == nil || e.URL == "" {
		return ErrInvalidEntry
	}
	return nil
}
