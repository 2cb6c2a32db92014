package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/ps-bridge/internal/testutil"
	"github.com/Sternrassler/ps-bridge/pkg/cache"
	"github.com/Sternrassler/ps-bridge/pkg/client"
	"github.com/Sternrassler/ps-bridge/pkg/session"
)

// newTestProxy returns the proxy router in front of mock.
func newTestProxy(t *testing.T, mock *testutil.MockServer) (http.Handler, *session.MemoryStore) {
	t.Helper()

	opts := cache.DefaultOptions()
	opts.SweepInterval = 0
	store := cache.NewMemoryStore(opts)
	t.Cleanup(func() { store.Close() })

	logger := zerolog.Nop()
	c, err := client.New(client.Config{
		BaseURL:    mock.URL(),
		SitePrefix: "/ps",
		UserAgent:  "ps-proxy-test/1.0",
		Timeout:    5 * time.Second,
		Cache:      store,
		Logger:     &logger,
	})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	sessions := session.NewMemoryStore()
	return newRouter(&proxy{client: c, sessions: sessions, logger: logger}, nil), sessions
}

func get(t *testing.T, h http.Handler, target string, header http.Header) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		w := httptest.NewRecorder()
		readyHandler(func(context.Context) error { return nil })(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		w := httptest.NewRecorder()
		readyHandler(func(context.Context) error { return errors.New("connection refused") })(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	h, _ := newTestProxy(t, mock)

	resp, body := get(t, h, "/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	if !strings.Contains(body, "ps_cache_misses_total") {
		t.Error("Expected metrics output to contain ps_cache_misses_total")
	}
}

func TestProxy_CachesXML(t *testing.T) {
	const doc = `<doc id="1">hello &amp; welcome</doc>`

	mock := testutil.NewMockServer()
	defer mock.Close()
	res := testutil.NewResource("d1", doc)
	mock.SetHandler("/ps/docs/1", res.ServeHTTP)

	h, _ := newTestProxy(t, mock)

	resp, body := get(t, h, "/ps/docs/1?lang=en", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if body != doc {
		t.Errorf("body = %q, want %q", body, doc)
	}
	if got := resp.Header.Get(CacheStatusHeader); got != "MISS" {
		t.Errorf("%s = %q, want MISS", CacheStatusHeader, got)
	}
	if got := resp.Header.Get("ETag"); got != `"d1"` {
		t.Errorf("ETag = %q", got)
	}
	if mock.LastQuery() != "lang=en" {
		t.Errorf("upstream query = %q, want lang=en", mock.LastQuery())
	}

	resp, body = get(t, h, "/ps/docs/1?lang=en", nil)
	if body != doc {
		t.Errorf("cached body = %q, want %q", body, doc)
	}
	if got := resp.Header.Get(CacheStatusHeader); got != "HIT" {
		t.Errorf("%s = %q, want HIT", CacheStatusHeader, got)
	}
	if res.NotModified() != 1 {
		t.Errorf("upstream 304s = %d, want 1", res.NotModified())
	}
}

func TestProxy_DownstreamNotModified(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	res := testutil.NewResource("d1", "<doc/>")
	mock.SetHandler("/ps/doc", res.ServeHTTP)

	h, _ := newTestProxy(t, mock)

	resp, body := get(t, h, "/ps/doc", http.Header{"If-None-Match": {`W/"other", "d1"`}})
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("Expected status 304, got %d", resp.StatusCode)
	}
	if body != "" {
		t.Errorf("body = %q, want empty", body)
	}
}

func TestProxy_ErrorEnvelopeForwarded(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	h, _ := newTestProxy(t, mock)

	resp, body := get(t, h, "/ps/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "<message>no such resource: /ps/missing</message>") {
		t.Errorf("body = %q, want the error envelope", body)
	}
}

func TestProxy_NonXMLCopied(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	mock.SetResponse("/ps/readme", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "plain text",
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
	})

	h, _ := newTestProxy(t, mock)

	resp, body := get(t, h, "/ps/readme", nil)
	if body != "plain text" {
		t.Errorf("body = %q", body)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestProxy_UpstreamDown(t *testing.T) {
	mock := testutil.NewMockServer()
	h, _ := newTestProxy(t, mock)
	mock.Close()

	resp, _ := get(t, h, "/ps/doc", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", resp.StatusCode)
	}
}

func TestProxy_SessionReuse(t *testing.T) {
	var (
		mu         sync.Mutex
		withCookie int
		withBasic  int
	)
	mock := testutil.NewMockServer()
	defer mock.Close()
	mock.SetHandler("/ps/secure", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", testutil.XMLContentType)
		if c, err := r.Cookie("JSESSIONID"); err == nil && c.Value == "s1" {
			mu.Lock()
			withCookie++
			mu.Unlock()
			_, _ = w.Write([]byte("<ok/>"))
			return
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "alice" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(testutil.ErrorEnvelope(0x401, "login required")))
			return
		}
		mu.Lock()
		withBasic++
		mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "s1"})
		_, _ = w.Write([]byte("<ok/>"))
	})

	h, _ := newTestProxy(t, mock)

	req := httptest.NewRequest("GET", "/ps/secure", nil)
	req.SetBasicAuth("alice", "secret")
	auth := http.Header{"Authorization": req.Header["Authorization"]}

	for i := 0; i < 2; i++ {
		resp, body := get(t, h, "/ps/secure", auth)
		if resp.StatusCode != http.StatusOK || body != "<ok></ok>" {
			t.Fatalf("request %d: status %d, body %q", i, resp.StatusCode, body)
		}
	}

	// Another password must not pick up alice's session.
	req.SetBasicAuth("alice", "wrong")
	resp, _ := get(t, h, "/ps/secure", http.Header{"Authorization": req.Header["Authorization"]})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password: status %d, want 401", resp.StatusCode)
	}

	mu.Lock()
	defer mu.Unlock()
	if withBasic != 1 || withCookie != 1 {
		t.Errorf("upstream saw %d basic and %d cookie requests, want 1 and 1", withBasic, withCookie)
	}
}

func TestEtagListed(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{`"abc"`, true},
		{`W/"abc"`, true},
		{`"x", "abc"`, true},
		{`*`, true},
		{`"abcd"`, false},
		{``, false},
	}
	for _, tt := range tests {
		if got := etagListed(tt.header, "abc"); got != tt.want {
			t.Errorf("etagListed(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ps-proxy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  origin: https://content.example.com/
  apiVersion: "3"
  timeout: 5s
cache:
  backend: tiered
  capacity: 500
  ttl: 30m
  idle: 5m
  maxEntrySize: 512kb
  disk:
    path: /var/cache/ps
    max: 2g
session:
  store: memory
log:
  level: debug
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Origin != "https://content.example.com" {
		t.Errorf("Origin = %q", cfg.Server.Origin)
	}
	if cfg.Server.SitePrefix != "/ps" {
		t.Errorf("SitePrefix = %q, want /ps", cfg.Server.SitePrefix)
	}
	if cfg.timeout != 5*time.Second || cfg.ttl != 30*time.Minute || cfg.idle != 5*time.Minute {
		t.Errorf("durations = %v %v %v", cfg.timeout, cfg.ttl, cfg.idle)
	}
	if cfg.maxEntrySize != 512*1024 || cfg.diskMax != 2<<30 {
		t.Errorf("sizes = %d %d", cfg.maxEntrySize, cfg.diskMax)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}

	opts := cfg.CacheOptions()
	if opts.Capacity != 500 || opts.TTL != 30*time.Minute || opts.IdleTimeout != 5*time.Minute {
		t.Errorf("CacheOptions() = %+v", opts)
	}

	cc := clientConfig(cfg, nil)
	if cc.BaseURL != cfg.Server.Origin || cc.APIVersion != "3" || cc.MaxCacheEntrySize != 512*1024 {
		t.Errorf("clientConfig() = %+v", cc)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PS_ORIGIN", "http://origin.local")
	t.Setenv("PORT", "7070")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Origin != "http://origin.local" || cfg.Server.Port != 7070 {
		t.Errorf("env overrides not applied: %q %d", cfg.Server.Origin, cfg.Server.Port)
	}
	if cfg.Cache.Backend != BackendMemory || cfg.Session.Store != BackendMemory {
		t.Errorf("backends = %q %q, want memory", cfg.Cache.Backend, cfg.Session.Store)
	}
	if cfg.maxEntrySize != cache.DefaultMaxEntrySize {
		t.Errorf("maxEntrySize = %d, want %d", cfg.maxEntrySize, cache.DefaultMaxEntrySize)
	}
	if cfg.ttl != time.Hour || cfg.idle != 20*time.Minute || cfg.timeout != 30*time.Second {
		t.Errorf("durations = %v %v %v", cfg.ttl, cfg.idle, cfg.timeout)
	}
	if cfg.UsesRedis() {
		t.Error("defaults should not need Redis")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"missing origin", "server:\n  port: 1\n", "server.origin is required"},
		{"unknown backend", "server:\n  origin: http://o\ncache:\n  backend: tape\n", "unknown backend"},
		{"tiered without path", "server:\n  origin: http://o\ncache:\n  backend: tiered\n", "cache.disk.path"},
		{"bad duration", "server:\n  origin: http://o\ncache:\n  ttl: soon\n", "cache.ttl"},
		{"bad size", "server:\n  origin: http://o\ncache:\n  maxEntrySize: lots\n", "cache.maxEntrySize"},
		{"unknown session store", "server:\n  origin: http://o\nsession:\n  store: file\n", "session.store"},
		{"bad yaml", "server: [", ""},
	}
	t.Setenv("PS_ORIGIN", "")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want it to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"512", 512, false},
		{"64kb", 64 * 1024, false},
		{"1.5m", 1536 * 1024, false},
		{"2GB", 2 << 30, false},
		{" 10 K ", 10 * 1024, false},
		{"", 0, true},
		{"b", 0, true},
		{"-1k", 0, true},
		{"many", 0, true},
	}
	for _, tt := range tests {
		got, err := parseBytes(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseBytes(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseBytes(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBuildCache(t *testing.T) {
	t.Setenv("PS_ORIGIN", "http://origin.local")
	base, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	logger := zerolog.Nop()

	for _, backend := range []string{BackendMemory, BackendTiered, BackendFreecache} {
		t.Run(backend, func(t *testing.T) {
			cfg := base
			cfg.Cache.Backend = backend
			cfg.Cache.Disk.Path = t.TempDir()
			cfg.ramMax = 4 << 20

			store, closeStore, err := buildCache(cfg, nil, logger)
			if err != nil {
				t.Fatalf("buildCache() error = %v", err)
			}
			defer closeStore()

			ctx := context.Background()
			if err := store.Set(ctx, &cache.Entry{URL: "http://o/ps/a", Data: []byte("<a/>"), MediaType: "text/xml", ETag: "e"}); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			got, err := store.Get(ctx, "http://o/ps/a")
			if err != nil || string(got.Data) != "<a/>" {
				t.Errorf("Get() = %v, %v", got, err)
			}
		})
	}

	t.Run("redis without client", func(t *testing.T) {
		cfg := base
		cfg.Cache.Backend = BackendRedis
		if _, _, err := buildCache(cfg, nil, logger); err == nil {
			t.Error("expected error without redis client")
		}
	})
}

func TestBuildSessions(t *testing.T) {
	var cfg Config
	cfg.Session.Store = BackendRedis
	if _, ok := buildSessions(cfg, nil).(*session.MemoryStore); !ok {
		t.Error("without a redis client sessions fall back to memory")
	}
}
