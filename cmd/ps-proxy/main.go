// Command ps-proxy serves content of a content server through the
// conditional response cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/ps-bridge/pkg/cache"
	"github.com/Sternrassler/ps-bridge/pkg/client"
	"github.com/Sternrassler/ps-bridge/pkg/logging"
	"github.com/Sternrassler/ps-bridge/pkg/session"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", getEnv("PS_PROXY_CONFIG", ""), "path to ps-proxy.yaml")
	flag.Parse()

	cfg, err := LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.Log)
	logger := logging.NewLogger(logging.ComponentProxy)

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	store, closeStore, err := buildCache(cfg, redisClient, logging.NewLogger(logging.ComponentCache))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create cache")
	}
	defer closeStore()

	c, err := client.New(clientConfig(cfg, store))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create client")
	}

	p := &proxy{
		client:   c,
		sessions: buildSessions(cfg, redisClient),
		logger:   logger,
	}
	var ping func(context.Context) error
	if redisClient != nil {
		ping = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           newRouter(p, ping),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("origin", cfg.Server.Origin).
			Str("cache", cfg.Cache.Backend).
			Str("sessions", cfg.Session.Store).
			Msg("Starting ps-proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// clientConfig derives the client configuration.
func clientConfig(cfg Config, store cache.Store) client.Config {
	return client.Config{
		BaseURL:           cfg.Server.Origin,
		SitePrefix:        cfg.Server.SitePrefix,
		UserAgent:         cfg.Server.UserAgent,
		APIVersion:        cfg.Server.APIVersion,
		Timeout:           cfg.timeout,
		Cache:             store,
		MaxCacheEntrySize: cfg.maxEntrySize,
		SingleFlight:      cfg.Cache.SingleFlight,
	}
}

// buildCache creates the configured cache backend and its close function.
func buildCache(cfg Config, redisClient *redis.Client, logger zerolog.Logger) (cache.Store, func() error, error) {
	opts := cfg.CacheOptions()
	noop := func() error { return nil }

	switch cfg.Cache.Backend {
	case BackendMemory:
		m := cache.NewMemoryStore(opts)
		return m, m.Close, nil
	case BackendTiered:
		disk, err := cache.OpenDiskStore(cfg.Cache.Disk.Path, cfg.diskMax, opts, logger)
		if err != nil {
			return nil, nil, err
		}
		t := cache.NewTieredStore(opts, disk, logger)
		return t, t.Close, nil
	case BackendFreecache:
		return cache.NewFreecacheStore(int(cfg.ramMax), opts), noop, nil
	case BackendRedis:
		if redisClient == nil {
			return nil, nil, fmt.Errorf("redis backend needs a redis client")
		}
		return cache.NewRedisStore(redisClient, opts, logger), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
}

// buildSessions creates the configured session store.
func buildSessions(cfg Config, redisClient *redis.Client) session.Store {
	if cfg.Session.Store == BackendRedis && redisClient != nil {
		return session.NewRedisStore(redisClient, logging.NewLogger(logging.ComponentSession))
	}
	return session.NewMemoryStore()
}
