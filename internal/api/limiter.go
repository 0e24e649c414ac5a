package api

import (
	"net/http"

	"github.com/star/skypass/internal/httputil"
)

// limited wraps a search handler with the concurrency limiter. Rejected
// requests get 429.
func (h *handlers) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.ClientIP(r, h.deps.TrustProxy)
		if !h.limiter.Acquire(ip) {
			h.logger.Warn("search rejected, too many in flight", "remote_ip", ip, "in_flight", h.limiter.Count(ip))
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many concurrent searches")
			return
		}
		defer h.limiter.Release(ip)
		next(w, r)
	}
}
