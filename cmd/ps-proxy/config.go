package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/ps-bridge/pkg/cache"
	"github.com/Sternrassler/ps-bridge/pkg/logging"
)

// Cache backends selectable in the configuration.
const (
	BackendMemory    = "memory"
	BackendTiered    = "tiered"
	BackendFreecache = "freecache"
	BackendRedis     = "redis"
)

// Config is the proxy configuration file.
type Config struct {
	Server struct {
		Port       int    `yaml:"port"`
		Origin     string `yaml:"origin"`
		SitePrefix string `yaml:"sitePrefix"`
		UserAgent  string `yaml:"userAgent"`
		APIVersion string `yaml:"apiVersion"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"server"`

	Cache struct {
		Backend      string `yaml:"backend"`
		Capacity     int    `yaml:"capacity"`
		TTL          string `yaml:"ttl"`
		Idle         string `yaml:"idle"`
		MaxEntrySize string `yaml:"maxEntrySize"`
		SingleFlight bool   `yaml:"singleFlight"`

		RAM struct {
			Max string `yaml:"max"`
		} `yaml:"ram"`
		Disk struct {
			Path string `yaml:"path"`
			Max  string `yaml:"max"`
		} `yaml:"disk"`
	} `yaml:"cache"`

	Redis struct {
		Addr string `yaml:"addr"`
		DB   int    `yaml:"db"`
	} `yaml:"redis"`

	Session struct {
		// Store is "memory" or "redis".
		Store string `yaml:"store"`
	} `yaml:"session"`

	Log logging.Config `yaml:"log"`

	// compiled
	timeout      time.Duration
	ttl          time.Duration
	idle         time.Duration
	maxEntrySize int64
	ramMax       int64
	diskMax      int64
}

// LoadConfig reads the YAML file at path, applies environment overrides and
// validates the result. An empty path uses defaults and the environment only.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Origin == "" {
		return Config{}, fmt.Errorf("server.origin is required")
	}
	cfg.Server.Origin = strings.TrimRight(cfg.Server.Origin, "/")
	if cfg.Server.SitePrefix == "" {
		cfg.Server.SitePrefix = "/ps"
	}
	if cfg.Server.UserAgent == "" {
		cfg.Server.UserAgent = "ps-bridge/0.1.0"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = BackendMemory
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = BackendMemory
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = logging.LevelInfo
	}

	defaults := cache.DefaultOptions()
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = defaults.Capacity
	}

	var err error
	if cfg.timeout, err = parseDuration(cfg.Server.Timeout, 30*time.Second); err != nil {
		return Config{}, fmt.Errorf("server.timeout: %w", err)
	}
	if cfg.ttl, err = parseDuration(cfg.Cache.TTL, defaults.TTL); err != nil {
		return Config{}, fmt.Errorf("cache.ttl: %w", err)
	}
	if cfg.idle, err = parseDuration(cfg.Cache.Idle, defaults.IdleTimeout); err != nil {
		return Config{}, fmt.Errorf("cache.idle: %w", err)
	}
	if cfg.maxEntrySize, err = parseSize(cfg.Cache.MaxEntrySize, cache.DefaultMaxEntrySize); err != nil {
		return Config{}, fmt.Errorf("cache.maxEntrySize: %w", err)
	}
	if cfg.ramMax, err = parseSize(cfg.Cache.RAM.Max, cache.DefaultFreecacheSize); err != nil {
		return Config{}, fmt.Errorf("cache.ram.max: %w", err)
	}
	if cfg.diskMax, err = parseSize(cfg.Cache.Disk.Max, cache.DefaultDiskSize); err != nil {
		return Config{}, fmt.Errorf("cache.disk.max: %w", err)
	}

	switch cfg.Cache.Backend {
	case BackendMemory, BackendFreecache, BackendRedis:
	case BackendTiered:
		if cfg.Cache.Disk.Path == "" {
			return Config{}, fmt.Errorf("cache.disk.path is required for the tiered backend")
		}
	default:
		return Config{}, fmt.Errorf("cache.backend: unknown backend %q", cfg.Cache.Backend)
	}
	switch cfg.Session.Store {
	case BackendMemory, BackendRedis:
	default:
		return Config{}, fmt.Errorf("session.store: unknown store %q", cfg.Session.Store)
	}

	return cfg, nil
}

// CacheOptions returns the store options of the configuration.
func (c Config) CacheOptions() cache.Options {
	opts := cache.DefaultOptions()
	opts.Capacity = c.Cache.Capacity
	opts.TTL = c.ttl
	opts.IdleTimeout = c.idle
	return opts
}

// UsesRedis reports whether any component needs the Redis client.
func (c Config) UsesRedis() bool {
	return c.Cache.Backend == BackendRedis || c.Session.Store == BackendRedis
}

// applyEnv overrides file settings from the environment.
func applyEnv(cfg *Config) {
	cfg.Server.Origin = getEnv("PS_ORIGIN", cfg.Server.Origin)
	cfg.Server.UserAgent = getEnv("USER_AGENT", cfg.Server.UserAgent)
	cfg.Cache.Backend = getEnv("PS_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Redis.Addr = getEnv("REDIS_URL", cfg.Redis.Addr)
	cfg.Log.Level = logging.LogLevel(getEnv("LOG_LEVEL", string(cfg.Log.Level)))
	if port, err := strconv.Atoi(getEnv("PORT", "")); err == nil {
		cfg.Server.Port = port
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

func parseSize(s string, def int64) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	return parseBytes(s)
}
