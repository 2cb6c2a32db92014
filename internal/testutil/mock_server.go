// Package testutil provides a mock content server for client tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// XMLContentType is the media type the mock serves XML with.
const XMLContentType = "text/xml; charset=UTF-8"

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockServer is a configurable mock content server for testing.
type MockServer struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	requestCount      int
	conditionalCount  int
	lastRequestHeader http.Header
	lastQuery         string
}

// NewMockServer creates and starts a new mock server.
func NewMockServer() *MockServer {
	mock := &MockServer{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.lastRequestHeader = r.Header.Clone()
		mock.lastQuery = r.URL.RawQuery
		if r.Header.Get("If-None-Match") != "" {
			mock.conditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockServer) URL() string {
	return m.server.URL
}

// Client returns an HTTP client wired to the mock server.
func (m *MockServer) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.conditionalCount = 0
	m.lastRequestHeader = nil
	m.lastQuery = ""
}

// SetHandler sets a custom handler for a specific path.
func (m *MockServer) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockServer) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns the number of requests made to the server.
func (m *MockServer) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// ConditionalCount returns the number of requests carrying If-None-Match.
func (m *MockServer) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockServer) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader.Clone()
}

// LastQuery returns the raw query of the most recent request.
func (m *MockServer) LastQuery() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

// defaultHandler answers unknown paths with a not-found error envelope.
func (m *MockServer) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", XMLContentType)
	w.WriteHeader(http.StatusNotFound)
	_, _ = fmt.Fprint(w, ErrorEnvelope(0x404, "no such resource: "+r.URL.Path))
}

// ErrorEnvelope renders the server's error envelope.
func ErrorEnvelope(id int, message string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><error id="%X"><message>%s</message></error>`, id, message)
}

// NewXMLResponse creates a 200 OK XML response with an ETag.
func NewXMLResponse(body, etag string) MockResponse {
	headers := map[string]string{"Content-Type": XMLContentType}
	if etag != "" {
		headers["ETag"] = `"` + etag + `"`
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    headers,
	}
}

// NewErrorResponse creates an error envelope response.
func NewErrorResponse(statusCode, id int, message string) MockResponse {
	return MockResponse{
		StatusCode: statusCode,
		Body:       ErrorEnvelope(id, message),
		Headers:    map[string]string{"Content-Type": XMLContentType},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return NewErrorResponse(http.StatusInternalServerError, 0x500, "internal server error")
}

// Resource is a versioned document that answers conditional requests.
type Resource struct {
	mu          sync.RWMutex
	etag        string
	body        string
	contentType string
	served      int
	notModified int
}

// NewResource creates a resource with the given version.
func NewResource(etag, body string) *Resource {
	return &Resource{etag: etag, body: body, contentType: XMLContentType}
}

// Set replaces the document and its version.
func (res *Resource) Set(etag, body string) {
	res.mu.Lock()
	defer res.mu.Unlock()
	res.etag = etag
	res.body = body
}

// SetContentType changes the media type the resource is served with.
func (res *Resource) SetContentType(contentType string) {
	res.mu.Lock()
	defer res.mu.Unlock()
	res.contentType = contentType
}

// Served returns the number of full 200 responses.
func (res *Resource) Served() int {
	res.mu.RLock()
	defer res.mu.RUnlock()
	return res.served
}

// NotModified returns the number of 304 responses.
func (res *Resource) NotModified() int {
	res.mu.RLock()
	defer res.mu.RUnlock()
	return res.notModified
}

// ServeHTTP answers 304 when If-None-Match names the current version.
func (res *Resource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res.mu.Lock()
	etag, body, contentType := res.etag, res.body, res.contentType
	match := etag != "" && matchesETag(r.Header.Get("If-None-Match"), etag)
	if match {
		res.notModified++
	} else {
		res.served++
	}
	res.mu.Unlock()

	if etag != "" {
		w.Header().Set("ETag", `"`+etag+`"`)
	}
	if match {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// matchesETag reports whether an If-None-Match value lists etag.
func matchesETag(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || strings.Trim(candidate, `"`) == etag {
			return true
		}
	}
	return false
}
