package cache

import (
	"net/http"
)

// DefaultMaxEntrySize is the largest body stored by default, in bytes.
const DefaultMaxEntrySize = 1_000_000

// Eligible reports whether a response may be stored: it needs an ETag, a
// media type and a known length of at most maxSize bytes.
func Eligible(etag, mediaType string, length, maxSize int64) bool {
	return etag != "" && mediaType != "" && length >= 0 && length <= maxSize
}

// AddConditionalHeaders adds If-None-Match with the entry's ETag to req.
func AddConditionalHeaders(req *http.Request, entry *Entry) {
	if entry == nil || req == nil || entry.ETag == "" {
		return
	}
	req.Header.Set("If-None-Match", `"`+entry.ETag+`"`)
	ConditionalRequests.Inc()
}
