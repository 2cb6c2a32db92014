package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisKeyPrefix namespaces cache keys in Redis.
const RedisKeyPrefix = "ps:cache:"

// RedisStore shares cached responses between processes. Keys expire after
// the idle timeout, which every hit renews with GETEX; the TTL is checked
// against the stored time. The entry count is bounded by the server's
// maxmemory policy, not by the store.
type RedisStore struct {
	redis  *redis.Client
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// NewRedisStore creates a store on redisClient.
func NewRedisStore(redisClient *redis.Client, opts Options, logger zerolog.Logger) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

func (s *RedisStore) key(url string) string {
	return RedisKeyPrefix + url
}

// Get retrieves an entry and renews its idle timer.
func (s *RedisStore) Get(ctx context.Context, url string) (*Entry, error) {
	var cmd *redis.StringCmd
	if s.opts.IdleTimeout > 0 {
		cmd = s.redis.GetEx(ctx, s.key(url), s.opts.IdleTimeout)
	} else {
		cmd = s.redis.Get(ctx, s.key(url))
	}

	data, err := cmd.Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	now := s.now()
	if s.opts.TTL > 0 && now.Sub(entry.StoredAt) >= s.opts.TTL {
		_ = s.Delete(ctx, url)
		CacheEvictions.WithLabelValues(EvictExpired).Inc()
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	// GETEX renewed the full idle timeout; shorten it if the TTL ends first.
	if ttl := entry.remaining(now, s.opts.TTL, s.opts.IdleTimeout); ttl > 0 && ttl < s.opts.IdleTimeout {
		s.redis.Expire(ctx, s.key(url), ttl)
	}

	entry.AccessedAt = now
	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Set stores entry with an expiration of the idle timeout, capped by the
// TTL. Entries already past their TTL are not stored.
func (s *RedisStore) Set(ctx context.Context, entry *Entry) error {
	if err := validEntry(entry); err != nil {
		return err
	}

	now := s.now()
	e := entry.clone()
	if e.StoredAt.IsZero() {
		e.StoredAt = now
	}
	e.AccessedAt = now

	data, err := json.Marshal(e)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	expiration := e.remaining(now, s.opts.TTL, s.opts.IdleTimeout)
	if expiration <= 0 && (s.opts.TTL > 0 || s.opts.IdleTimeout > 0) {
		return nil
	}
	if err := s.redis.Set(ctx, s.key(e.URL), data, expiration).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	s.logger.Debug().
		Str("url", e.URL).
		Int("size", e.Size()).
		Dur("expiration", expiration).
		Msg("Entry stored in redis")
	return nil
}

// Delete removes a cache entry.
func (s *RedisStore) Delete(ctx context.Context, url string) error {
	if err := s.redis.Del(ctx, s.key(url)).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
