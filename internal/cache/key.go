package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Key builds the cache key for a request. The query string is
// canonicalized by sorting parameter names (and values within a name)
// so equivalent URLs share one entry. The path leads the key so
// prefix-based invalidation can match it; the method trails to keep GET
// and HEAD entries distinct.
func Key(method, path string, query url.Values) string {
	var b strings.Builder
	b.WriteString(path)

	if len(query) > 0 {
		b.WriteByte('?')
		b.WriteString(canonicalQuery(query))
	}

	b.WriteByte('|')
	b.WriteString(method)
	return b.String()
}

// InvalidationPrefix returns the first path segment of a write-request
// path, the granularity at which cached reads are invalidated.
// "/users/42/orders" yields "/users".
func InvalidationPrefix(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "/"
	}
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return "/" + trimmed
}

func canonicalQuery(query url.Values) string {
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		values := append([]string(nil), query[name]...)
		sort.Strings(values)
		for _, value := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(value))
		}
	}
	return b.String()
}
