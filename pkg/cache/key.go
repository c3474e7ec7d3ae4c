package cache

import (
	"net/http"
	"net/url"
	"strings"
)

// CacheKey identifies a cached response by request method and URL.
type CacheKey struct {
	// Method is the request method (compared case-insensitively)
	Method string

	// URL is the absolute request URL
	URL string
}

// KeyFromRequest builds the cache key for req.
func KeyFromRequest(req *http.Request) CacheKey {
	return CacheKey{
		Method: req.Method,
		URL:    req.URL.String(),
	}
}

// String generates a deterministic cache key string.
// Format: METHOD scheme://host/path?sorted-query
//
// Example:
//
//	GET https://kodeenhunter.com/shop?category=luts&page=2
//
// Scheme and host are lower-cased, an empty path becomes "/", query
// parameters are sorted and the fragment is dropped. A URL that cannot be
// parsed is used verbatim.
func (k CacheKey) String() string {
	method := strings.ToUpper(k.Method)
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.Parse(k.URL)
	if err != nil {
		return method + " " + k.URL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		// Encode sorts by key
		u.RawQuery = u.Query().Encode()
	}

	return method + " " + u.String()
}
