// Package transport holds helpers shared by the WebSocket transports.
package transport

import (
	"net/http"
	"strings"
)

// OriginAllowed reports whether the request's Origin header is in allowed.
// An empty list allows every origin, and requests without an Origin header
// (non-browser clients) are always allowed.
func OriginAllowed(r *http.Request, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
