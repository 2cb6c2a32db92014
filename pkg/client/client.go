// Package client executes requests against the content server and layers the
// conditional response cache over GET requests.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/ps-bridge/pkg/cache"
	"github.com/Sternrassler/ps-bridge/pkg/logging"
	"github.com/Sternrassler/ps-bridge/pkg/resource"
	"github.com/Sternrassler/ps-bridge/pkg/response"
	"github.com/Sternrassler/ps-bridge/pkg/session"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ps_requests_total",
		Help: "Total requests to the content server by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ps_request_duration_seconds",
		Help:    "Time until response headers arrived, by method",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})
)

// APIVersionParam is the query parameter carrying the service API version.
const APIVersionParam = "v"

// Config holds the client configuration.
type Config struct {
	// BaseURL is the server root, e.g. "https://content.example.com".
	BaseURL string

	// SitePrefix is joined to BaseURL to form the site URL relative
	// descriptor paths resolve against.
	SitePrefix string

	// UserAgent is sent with every request (REQUIRED).
	UserAgent string

	// APIVersion is added as the "v" parameter to requests that lack it.
	APIVersion string

	// Timeout bounds one exchange unless the descriptor sets its own.
	Timeout time.Duration

	// Cache enables conditional caching for Get. Nil disables caching.
	Cache cache.Store

	// MaxCacheEntrySize is the largest body stored in Cache, in bytes.
	MaxCacheEntrySize int64

	// SingleFlight coalesces concurrent cache misses for the same URL
	// into one request.
	SingleFlight bool

	// HTTPClient overrides the transport (optional).
	HTTPClient *http.Client

	// Logger overrides the component logger (optional).
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration with the reference defaults and an
// in-memory cache.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:           baseURL,
		SitePrefix:        "/ps",
		UserAgent:         userAgent,
		Timeout:           30 * time.Second,
		Cache:             cache.NewMemoryStore(cache.DefaultOptions()),
		MaxCacheEntrySize: cache.DefaultMaxEntrySize,
	}
}

// Client is the content server client. It holds no per-request state and is
// safe for concurrent use.
type Client struct {
	httpClient *http.Client
	base       *url.URL
	cache      cache.Store
	flight     *singleflight.Group
	config     Config
	logger     zerolog.Logger
}

// New creates a client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %v)", cfg.Timeout)
	}
	if cfg.MaxCacheEntrySize <= 0 {
		cfg.MaxCacheEntrySize = cache.DefaultMaxEntrySize
	}

	if cfg.SitePrefix != "" {
		base.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.Trim(cfg.SitePrefix, "/")
	}
	base.RawPath = ""

	logger := logging.NewLogger(logging.ComponentClient)
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		httpClient: httpClient,
		base:       base,
		cache:      cfg.Cache,
		config:     cfg,
		logger:     logger,
	}
	if cfg.SingleFlight {
		c.flight = &singleflight.Group{}
	}
	return c, nil
}

// SiteURL returns the URL relative descriptor paths resolve against.
func (c *Client) SiteURL() *url.URL {
	u := *c.base
	return &u
}

// Cache returns the configured cache, or nil.
func (c *Client) Cache() cache.Store {
	return c.cache
}

// Do performs one exchange without consulting the cache. For non-2xx
// responses the body is read for its error envelope only, unless the
// descriptor asks for the error content.
func (c *Client) Do(ctx context.Context, d resource.Descriptor, creds resource.Credentials) *response.Response {
	return c.exchange(ctx, c.prepare(d), creds, nil)
}

// Get performs d through the cache. A cached entry is revalidated with its
// ETag; a 304 returns the cached bytes. Requests other than GET bypass the
// cache.
func (c *Client) Get(ctx context.Context, d resource.Descriptor, creds resource.Credentials) *response.Response {
	d = c.prepare(d)
	if c.cache == nil || d.Method != http.MethodGet {
		return c.exchange(ctx, d, creds, nil)
	}

	u, err := d.URL(c.base)
	if err != nil {
		return response.Failed(response.ProcessError, fmt.Errorf("build request: %w", err), validSession(creds))
	}
	key := cache.CanonicalURL(u)

	entry, err := c.cache.Get(ctx, key)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn().Err(err).Str("url", key).Msg("Cache lookup failed")
	}
	if entry == nil {
		c.logger.Debug().Str("url", key).Msg("Cache miss")
		return c.fetch(ctx, d, creds, key)
	}

	c.logger.Debug().
		Str("url", key).
		Str("etag", entry.ETag).
		Msg("Cache hit, revalidating")
	return c.revalidate(ctx, d, creds, key, entry)
}

// fetch performs an unconditional GET and stores an eligible result.
func (c *Client) fetch(ctx context.Context, d resource.Descriptor, creds resource.Credentials, key string) *response.Response {
	if c.flight == nil {
		r := c.exchange(ctx, d, creds, nil)
		if r.IsSuccessful() {
			c.store(ctx, key, r)
		}
		return r
	}

	// The leader keeps the live response; callers that joined it get a
	// copy of the buffered body, or fetch on their own if there is none.
	var leader bool
	v, _, _ := c.flight.Do(flightKey(key, creds), func() (any, error) {
		leader = true
		r := c.exchange(ctx, d, creds, nil)
		var content *response.Content
		if r.IsSuccessful() {
			content = c.store(ctx, key, r)
		}
		return flightResult{live: r, content: content, session: r.Session()}, nil
	})
	res := v.(flightResult)
	if leader {
		return res.live
	}
	if res.content == nil {
		return c.exchange(ctx, d, creds, nil)
	}

	// Joined callers authenticated like the leader and carry its session.
	sess := res.session
	if sess == nil {
		if sess = validSession(creds); sess != nil {
			sess.Touch()
		}
	}
	return response.Cached(*res.content, nil).WithSession(sess)
}

type flightResult struct {
	live    *response.Response
	content *response.Content
	session *session.Session
}

// flightKey separates callers that authenticate differently.
func flightKey(key string, creds resource.Credentials) string {
	if creds == nil {
		return key
	}
	return fmt.Sprintf("%s\x00%T\x00%v", key, creds, creds)
}

// revalidate sends a conditional GET for entry.
func (c *Client) revalidate(ctx context.Context, d resource.Descriptor, creds resource.Credentials, key string, entry *cache.Entry) *response.Response {
	live := c.exchange(ctx, d, creds, entry)

	switch {
	case live.Code() == http.StatusNotModified:
		cache.NotModified.Inc()
		if s := live.Session(); s != nil {
			s.Touch()
		}
		c.logger.Info().
			Str("url", key).
			Str("etag", entry.ETag).
			Msg("304 Not Modified - using cache")
		return response.Cached(response.Content{
			Data:      entry.Data,
			MediaType: entry.MediaType,
			Charset:   entry.Charset,
			ETag:      entry.ETag,
		}, live)

	case live.Code() == http.StatusOK:
		if c.store(ctx, key, live) == nil {
			// The stored ETag no longer matches the resource.
			if err := c.cache.Delete(ctx, key); err != nil {
				c.logger.Warn().Err(err).Str("url", key).Msg("Failed to drop outdated cache entry")
			}
		}
		return live

	default:
		c.logger.Warn().
			Str("url", key).
			Str("status", live.Status().String()).
			Str("message", live.Message()).
			Msg("Revalidation failed, keeping cached entry")
		return live
	}
}

// store buffers an eligible response body and writes it to the cache. It
// returns the stored content, or nil if r was not stored.
func (c *Client) store(ctx context.Context, key string, r *response.Response) *response.Content {
	maxSize := c.config.MaxCacheEntrySize
	if r.ETag() == "" || r.MediaType() == "" || r.Length() > maxSize {
		c.logger.Debug().
			Str("url", key).
			Str("etag", r.ETag()).
			Int64("length", r.Length()).
			Msg("Response not cacheable")
		return nil
	}

	data, ok, err := r.BufferBody(maxSize)
	if err != nil || !ok {
		return nil
	}
	if !cache.Eligible(r.ETag(), r.MediaType(), int64(len(data)), maxSize) {
		return nil
	}

	entry := &cache.Entry{
		URL:       key,
		Data:      data,
		MediaType: r.MediaType(),
		Charset:   r.Charset(),
		ETag:      r.ETag(),
	}
	if err := c.cache.Set(ctx, entry); err != nil {
		c.logger.Warn().Err(err).Str("url", key).Msg("Failed to cache response")
		return nil
	}
	cache.CacheStores.Inc()
	c.logger.Info().
		Str("url", key).
		Str("etag", entry.ETag).
		Int("size", len(data)).
		Msg("Cached response")

	return &response.Content{
		Data:      data,
		MediaType: entry.MediaType,
		Charset:   entry.Charset,
		ETag:      entry.ETag,
	}
}

// prepare applies client defaults to d.
func (c *Client) prepare(d resource.Descriptor) resource.Descriptor {
	if d.Method == "" {
		d.Method = http.MethodGet
	}
	if c.config.APIVersion != "" && !d.Has(APIVersionParam) {
		d = d.With(APIVersionParam, c.config.APIVersion)
	}
	return d
}

// exchange sends d and wraps the result. A non-nil entry makes the request
// conditional.
func (c *Client) exchange(ctx context.Context, d resource.Descriptor, creds resource.Credentials, entry *cache.Entry) *response.Response {
	var sess *session.Session
	if s, ok := creds.(*session.Session); ok {
		switch {
		case s == nil:
			creds = nil
		case !s.IsValid():
			session.SessionsStale.Inc()
			c.logger.Warn().
				Dur("age", s.Age()).
				Msg("Dropping stale session")
			creds = nil
		default:
			sess = s
		}
	}

	timeout := d.Timeout
	if timeout == 0 {
		timeout = c.config.Timeout
	}
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	req, err := d.Request(ctx, c.base)
	if err != nil {
		cancel()
		return response.Failed(response.ProcessError, fmt.Errorf("build request: %w", err), sess)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/xml, application/xml, */*;q=0.5")
	}
	if creds != nil {
		creds.Authorize(req)
	}
	if entry != nil {
		cache.AddConditionalHeaders(req, entry)
	}

	c.logger.Debug().
		Str("method", d.Method).
		Str("url", req.URL.String()).
		Bool("conditional", entry != nil).
		Msg("Executing request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(d.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		cancel()
		requestsTotal.WithLabelValues(d.Method, response.ConnectionError.String()).Inc()
		c.logger.Error().Err(err).Str("url", req.URL.String()).Msg("Request failed")
		return response.Failed(response.ConnectionError, err, sess)
	}

	r := response.New(resp, response.Options{Session: sess, OnClose: cancel})
	requestsTotal.WithLabelValues(d.Method, r.Status().String()).Inc()

	if st := r.Status(); (st == response.ClientError || st == response.ServerError) && !d.IncludeErrorContent {
		c.readError(r)
	}
	return r
}

// readError reads the body of a failed exchange for its error envelope and
// releases it.
func (c *Client) readError(r *response.Response) {
	if !r.IsXML() {
		_ = r.Consume()
		return
	}
	se, err := r.ConsumeServiceError()
	if err != nil {
		c.logger.Warn().Err(err).Int("status", r.Code()).Msg("Unreadable error response")
		return
	}
	if se != nil {
		c.logger.Warn().
			Int("status", r.Code()).
			Str("error_code", se.Code()).
			Str("message", se.Message).
			Msg("Server reported error")
	}
}

// validSession returns the session creds carry, if it is still valid.
func validSession(creds resource.Credentials) *session.Session {
	if s, ok := creds.(*session.Session); ok && s.IsValid() {
		return s
	}
	return nil
}
