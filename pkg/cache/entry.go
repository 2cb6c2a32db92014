package cache

import "time"

// Entry is a cached response body. Entries are treated as immutable once
// stored; Data must not be modified.
type Entry struct {
	// URL is the canonical request URL the entry is keyed by.
	URL string `json:"url"`

	Data      []byte `json:"data"`
	MediaType string `json:"media_type"`
	Charset   string `json:"charset,omitempty"`

	// ETag is the unquoted entity tag sent back in If-None-Match.
	ETag string `json:"etag"`

	StoredAt   time.Time `json:"stored_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

// Size is the payload size in bytes.
func (e *Entry) Size() int {
	return len(e.Data)
}

// Expired reports whether the entry outlived ttl since it was stored or
// idle since it was last accessed. Zero durations disable the check.
func (e *Entry) Expired(now time.Time, ttl, idle time.Duration) bool {
	if ttl > 0 && now.Sub(e.StoredAt) >= ttl {
		return true
	}
	return idle > 0 && now.Sub(e.AccessedAt) >= idle
}

// remaining is the shorter of the time left until the TTL and the idle
// window, or 0 if neither applies.
func (e *Entry) remaining(now time.Time, ttl, idle time.Duration) time.Duration {
	d := idle
	if ttl > 0 {
		left := ttl - now.Sub(e.StoredAt)
		if d <= 0 || left < d {
			d = left
		}
	}
	return d
}

func (e *Entry) clone() *Entry {
	c := *e
	return &c
}
