package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tjfontaine/scene-gateway/internal/domain"
	"github.com/tjfontaine/scene-gateway/internal/ratelimit"
)

// ClientIDHeader names the caller explicitly; without it the remote IP is used.
const ClientIDHeader = "X-Client-ID"

// ClientIdentity returns the key a request is rate limited under.
func ClientIdentity(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ClientIDHeader)); id != "" {
		return "client:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimitMiddleware admits requests through limiter and writes the
// normalized x-ratelimit-*-requests headers on every response. Rejected
// requests get a 429 without reaching next.
func RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			identity := ClientIdentity(r)
			d := limiter.Allow(identity)
			writeRateLimitHeaders(w.Header(), d)

			if !d.Allowed {
				AddLogField(r.Context(), "rate_limited", identity)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d)))
				writeError(w, domain.ErrRateLimit("too many requests, retry after the current window"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimitHeaders uses the standard format
// x-ratelimit-{limit|remaining|reset}-requests. A disabled limiter writes nothing.
func writeRateLimitHeaders(h http.Header, d ratelimit.Decision) {
	if d.Limit <= 0 {
		return
	}
	h.Set("x-ratelimit-limit-requests", strconv.Itoa(d.Limit))
	h.Set("x-ratelimit-remaining-requests", strconv.Itoa(d.Remaining))
	if !d.Reset.IsZero() {
		h.Set("x-ratelimit-reset-requests", d.Reset.UTC().Format(time.RFC3339))
	}
}

func retryAfterSeconds(d ratelimit.Decision) int {
	if d.Reset.IsZero() {
		return 1
	}
	secs := int(math.Ceil(time.Until(d.Reset).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
