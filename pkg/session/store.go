package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisKeyPrefix namespaces session keys in Redis.
const RedisKeyPrefix = "ps:session:"

// ErrNoSession is returned when no valid session is stored under a key.
var ErrNoSession = errors.New("no session")

// Store persists sessions so that they can be shared between processes.
// Implementations never return stale sessions.
type Store interface {
	Load(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, key string, s *Session) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrNoSession
	}
	if !s.IsValid() {
		delete(m.sessions, key)
		SessionsStale.Inc()
		return nil, ErrNoSession
	}
	return s, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, s *Session) error {
	if s == nil {
		return fmt.Errorf("session cannot be nil")
	}
	m.mu.Lock()
	m.sessions[key] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()
	return nil
}

// record is the Redis representation of a session.
type record struct {
	ID       string    `json:"id"`
	LastUsed time.Time `json:"last_used"`
}

// RedisStore shares sessions across instances via Redis. Keys expire when
// the session would become stale.
type RedisStore struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(redisClient *redis.Client, logger zerolog.Logger) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		logger: logger,
	}
}

func (r *RedisStore) Load(ctx context.Context, key string) (*Session, error) {
	data, err := r.redis.Get(ctx, RedisKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}

	s := Restore(rec.ID, rec.LastUsed)
	if !s.IsValid() {
		r.logger.Debug().
			Str("key", key).
			Dur("age", s.Age()).
			Msg("Discarding stale session")
		SessionsStale.Inc()
		_ = r.Delete(ctx, key)
		return nil, ErrNoSession
	}
	return s, nil
}

// Save stores s with a TTL matching its remaining validity. Stale sessions
// are not stored.
func (r *RedisStore) Save(ctx context.Context, key string, s *Session) error {
	if s == nil {
		return fmt.Errorf("session cannot be nil")
	}

	ttl := ValidityWindow - s.Age()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(record{ID: s.ID(), LastUsed: s.LastUsed()})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := r.redis.Set(ctx, RedisKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	r.logger.Debug().
		Str("key", key).
		Dur("ttl", ttl).
		Msg("Session stored")
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, RedisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
