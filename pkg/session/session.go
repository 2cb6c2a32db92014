// Package session tracks the server-issued session that lets consecutive
// requests skip re-authentication. A session is valid for ValidityWindow
// after it was last used.
package session

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// DefaultCookieName is the cookie the server issues sessions under.
	DefaultCookieName = "JSESSIONID"

	// ValidityWindow is how long an unused session stays valid.
	ValidityWindow = 60 * time.Minute
)

var (
	sessionsRefreshed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_sessions_refreshed_total",
		Help: "Total number of sessions issued or replaced by the server",
	})

	// SessionsStale counts sessions dropped because they outlived the
	// validity window.
	SessionsStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_sessions_stale_total",
		Help: "Total number of sessions discarded as stale",
	})
)

// now is replaced in tests.
var now = time.Now

// Session is a server-issued session identifier with its last-use time.
// It is safe for concurrent use.
type Session struct {
	id       string
	lastUsed atomic.Int64
}

// New returns a session with the given ID, last used now.
func New(id string) *Session {
	return Restore(id, now())
}

// Restore returns a session with an explicit last-use time, e.g. when
// loading one from a Store.
func Restore(id string, lastUsed time.Time) *Session {
	s := &Session{id: id}
	s.lastUsed.Store(lastUsed.UnixNano())
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.lastUsed.Store(now().UnixNano())
}

// Age is the time since the session was last used.
func (s *Session) Age() time.Duration {
	return now().Sub(s.LastUsed())
}

// IsValid reports whether the session was used within ValidityWindow.
func (s *Session) IsValid() bool {
	return s != nil && s.id != "" && s.Age() < ValidityWindow
}

// Authorize attaches the session cookie to req.
func (s *Session) Authorize(req *http.Request) {
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: s.id})
}

func (s *Session) String() string {
	if s == nil {
		return "<no session>"
	}
	return DefaultCookieName + "=" + s.id
}

// ParseSetCookie returns the session ID issued in the Set-Cookie headers of
// h, or "" if none was issued.
func ParseSetCookie(h http.Header) string {
	for _, line := range h.Values("Set-Cookie") {
		c, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		if c.Name == DefaultCookieName && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// Update derives the session to carry forward after an exchange. A session
// issued in h replaces current; otherwise current is touched if the exchange
// succeeded and returned unchanged.
func Update(h http.Header, current *Session, ok bool) *Session {
	if id := ParseSetCookie(h); id != "" {
		if current != nil && current.id == id {
			current.Touch()
			return current
		}
		sessionsRefreshed.Inc()
		return New(id)
	}
	if current != nil && ok {
		current.Touch()
	}
	return current
}
