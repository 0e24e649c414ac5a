// Package auth enforces a shared bearer token on the search API.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// publicRoute matches requests that never need a token.
type publicRoute struct {
	method string
	path   string
	prefix bool
}

var publicRoutes = []publicRoute{
	{method: http.MethodGet, path: "/"},
	{method: http.MethodGet, path: "/healthz"},
	{method: http.MethodGet, path: "/readyz"},
	{method: http.MethodGet, path: "/metrics"},
	{method: http.MethodGet, path: "/api/v1/tle/metadata"},
	{method: http.MethodGet, path: "/api/v1/convert/", prefix: true},
}

// queryTokenPrefix marks the SSE routes where ?access_token= is accepted,
// since EventSource clients cannot set request headers.
const queryTokenPrefix = "/api/v1/track/"

func isPublic(r *http.Request) bool {
	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	for _, pr := range publicRoutes {
		if pr.method != method {
			continue
		}
		if r.URL.Path == pr.path || pr.prefix && strings.HasPrefix(r.URL.Path, pr.path) {
			return true
		}
	}
	return false
}

// Middleware returns an HTTP middleware that requires the configured token
// on every non-public route when auth is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isPublic(r) || authorized(r, cfg.Token) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="skypass"`)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		})
	}
}

func authorized(r *http.Request, want string) bool {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return tokenMatches(token, want)
	}
	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, queryTokenPrefix) {
		return tokenMatches(r.URL.Query().Get("access_token"), want)
	}
	return false
}

// tokenMatches compares in constant time. An empty token never matches.
func tokenMatches(token, want string) bool {
	if token == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1
}
