package observability

import (
	"strings"
	"unicode"
)

const (
	defaultStringLimit = 256
	routeLimit         = 180
	methodLimit        = 10
	remoteAddrLimit    = 64
)

// sanitizeString drops control characters, newlines included, and truncates to limit runes.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}
	var b strings.Builder
	b.Grow(min(len(value), limit))
	n := 0
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// SanitizeRoute cleans a chi route pattern for logs and metric labels.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, routeLimit)
}

// SanitizeMethod cleans an HTTP method; anything that is not an upper-case token becomes OTHER
// so unexpected methods cannot grow the metric label set.
func SanitizeMethod(method string) string {
	method = sanitizeString(method, methodLimit)
	if method == "" {
		return "OTHER"
	}
	for _, r := range method {
		if r < 'A' || r > 'Z' {
			return "OTHER"
		}
	}
	return method
}

// SanitizeRemoteAddr cleans a client address for access logs.
func SanitizeRemoteAddr(addr string) string {
	return sanitizeString(strings.TrimSpace(addr), remoteAddrLimit)
}
