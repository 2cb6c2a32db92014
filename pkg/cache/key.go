package cache

import (
	"net/url"
	"strings"
)

// CanonicalURL returns the cache key for u: scheme and host lower-cased,
// default ports removed, query parameters sorted and the fragment dropped.
func CanonicalURL(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	c.Fragment = ""
	c.RawFragment = ""
	c.User = nil

	if host, port, ok := strings.Cut(c.Host, ":"); ok && !strings.HasPrefix(c.Host, "[") {
		if (c.Scheme == "http" && port == "80") || (c.Scheme == "https" && port == "443") {
			c.Host = host
		}
	}
	if c.Path == "" && c.Host != "" {
		c.Path = "/"
	}
	if c.RawQuery != "" {
		// Encode sorts by key; values keep their order.
		c.RawQuery = c.Query().Encode()
	}
	c.ForceQuery = false
	return c.String()
}
