package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/coocood/freecache"
)

// DefaultFreecacheSize is the memory reserved by NewFreecacheStore when
// size is not positive.
const DefaultFreecacheSize = 256 * 1024 * 1024

// FreecacheStore is an in-process store bounded by bytes rather than entry
// count. freecache evicts approximately least-recently-used segments when
// full. Entries expire after the idle timeout, renewed on every hit, and
// never outlive the TTL.
type FreecacheStore struct {
	client *freecache.Cache
	opts   Options
	now    func() time.Time
}

// NewFreecacheStore allocates a freecache of size bytes.
func NewFreecacheStore(size int, opts Options) *FreecacheStore {
	if size <= 0 {
		size = DefaultFreecacheSize
	}
	return &FreecacheStore{
		client: freecache.NewCache(size),
		opts:   opts,
		now:    time.Now,
	}
}

// expireSeconds converts d to freecache's whole seconds, rounding up so that
// short remainders do not become "never expires".
func expireSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func (s *FreecacheStore) Get(_ context.Context, url string) (*Entry, error) {
	key := []byte(url)

	val, err := s.client.Get(key)
	if err != nil {
		if err == freecache.ErrNotFound {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("freecache get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(val, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	now := s.now()
	if entry.Expired(now, s.opts.TTL, 0) {
		s.client.Del(key)
		CacheEvictions.WithLabelValues(EvictExpired).Inc()
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	if ttl := entry.remaining(now, s.opts.TTL, s.opts.IdleTimeout); ttl > 0 {
		_ = s.client.Touch(key, expireSeconds(ttl))
	}

	entry.AccessedAt = now
	CacheHits.WithLabelValues("freecache").Inc()
	return &entry, nil
}

func (s *FreecacheStore) Set(_ context.Context, entry *Entry) error {
	if err := validEntry(entry); err != nil {
		return err
	}

	now := s.now()
	e := entry.clone()
	if e.StoredAt.IsZero() {
		e.StoredAt = now
	}
	e.AccessedAt = now

	val, err := json.Marshal(e)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	ttl := e.remaining(now, s.opts.TTL, s.opts.IdleTimeout)
	if ttl <= 0 && (s.opts.TTL > 0 || s.opts.IdleTimeout > 0) {
		return nil
	}
	if err := s.client.Set([]byte(e.URL), val, expireSeconds(ttl)); err != nil {
		// freecache rejects values larger than 1/1024 of its size.
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("freecache set: %w", err)
	}
	CacheEntries.WithLabelValues("freecache").Set(float64(s.client.EntryCount()))
	return nil
}

func (s *FreecacheStore) Delete(_ context.Context, url string) error {
	s.client.Del([]byte(url))
	CacheEntries.WithLabelValues("freecache").Set(float64(s.client.EntryCount()))
	return nil
}

// Len returns the number of entries held by freecache.
func (s *FreecacheStore) Len() int {
	return int(s.client.EntryCount())
}
