package middleware

import (
	"net/http"
	"strings"
)

// CORS handles cross-origin requests from the host web view.
type CORS struct {
	allowedOrigins []string
	allowAll       bool
}

// NewCORS creates a CORS policy. An empty list or "*" allows any origin.
func NewCORS(allowedOrigins []string) *CORS {
	allowAll := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
	}
	return &CORS{allowedOrigins: allowedOrigins, allowAll: allowAll}
}

// Handler returns the CORS middleware handler.
func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && c.Allowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
			w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
			w.Header().Set("Access-Control-Max-Age", "3600")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allowed reports whether origin may connect. Entries starting with "." match
// any subdomain.
func (c *CORS) Allowed(origin string) bool {
	if c.allowAll || origin == "" {
		return true
	}
	for _, allowed := range c.allowedOrigins {
		if allowed == origin {
			return true
		}
		if strings.HasPrefix(allowed, ".") && strings.HasSuffix(origin, allowed) {
			return true
		}
	}
	return false
}

// CheckOrigin adapts Allowed to a websocket upgrader's origin check.
func (c *CORS) CheckOrigin(r *http.Request) bool {
	return c.Allowed(r.Header.Get("Origin"))
}
