package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/ps-bridge/pkg/client"
	"github.com/Sternrassler/ps-bridge/pkg/metrics"
	"github.com/Sternrassler/ps-bridge/pkg/resource"
	"github.com/Sternrassler/ps-bridge/pkg/response"
	"github.com/Sternrassler/ps-bridge/pkg/session"
)

var proxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ps_proxy_requests_total",
	Help: "Total proxied requests by response status",
}, []string{"status"})

// CacheStatusHeader tells downstream clients whether the body came from the
// cache.
const CacheStatusHeader = "X-Cache"

// proxy forwards GET requests through the cache-aware client.
type proxy struct {
	client   *client.Client
	sessions session.Store
	logger   zerolog.Logger
}

// newRouter wires the proxy routes. ping checks backing services for /ready
// and may be nil.
func newRouter(p *proxy, ping func(context.Context) error) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(ping))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ps/*", p.serveContent)
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// serveContent forwards /ps/<path>?<query> to the content server and copies
// the answer back, XML through the re-serializing copy handler.
func (p *proxy) serveContent(w http.ResponseWriter, r *http.Request) {
	d := resource.Get(chi.URLParam(r, "*")).WithErrorContent()
	for name, values := range r.URL.Query() {
		for _, v := range values {
			d = d.With(name, v)
		}
	}

	creds, key := p.credentials(r)
	resp := p.client.Get(r.Context(), d, creds)
	defer resp.Close()

	proxyRequestsTotal.WithLabelValues(resp.Status().String()).Inc()
	if key != "" && resp.Session() != nil {
		if err := p.sessions.Save(r.Context(), key, resp.Session()); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to save session")
		}
	}

	if resp.Status().Local() {
		p.logger.Error().
			Str("path", r.URL.Path).
			Str("status", resp.Status().String()).
			Str("message", resp.Message()).
			Msg("Upstream request failed")
		http.Error(w, resp.Message(), http.StatusBadGateway)
		return
	}

	h := w.Header()
	if ct := resp.Header().Get("Content-Type"); ct != "" {
		h.Set("Content-Type", ct)
	}
	if etag := resp.ETag(); etag != "" {
		h.Set("ETag", `"`+etag+`"`)
	}
	if resp.FromCache() {
		h.Set(CacheStatusHeader, "HIT")
	} else {
		h.Set(CacheStatusHeader, "MISS")
	}

	if resp.IsSuccessful() && resp.ETag() != "" && etagListed(r.Header.Get("If-None-Match"), resp.ETag()) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.WriteHeader(resp.Code())
	if !resp.IsAvailable() {
		return
	}

	var err error
	if resp.IsXML() {
		err = resp.CopyXML(w)
	} else {
		var data []byte
		if data, err = resp.ConsumeBytes(); err == nil {
			_, err = w.Write(data)
		}
	}
	if err != nil {
		p.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to copy response body")
	}
}

// credentials maps the downstream Authorization header to upstream
// credentials. Basic users reuse a stored upstream session when one is
// valid; key names that session and is derived from both user and password.
func (p *proxy) credentials(r *http.Request) (resource.Credentials, string) {
	if user, pass, ok := r.BasicAuth(); ok {
		sum := sha256.Sum256([]byte(user + "\x00" + pass))
		key := "basic:" + hex.EncodeToString(sum[:])
		if s, err := p.sessions.Load(r.Context(), key); err == nil {
			return s, key
		}
		return resource.UsernamePassword{Username: user, Password: pass}, key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return resource.Token(token), ""
	}
	return nil, ""
}

// etagListed reports whether an If-None-Match value names etag.
func etagListed(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || response.UnwrapETag(candidate) == etag {
			return true
		}
	}
	return false
}
