// Package ratelimiter admits websocket handshakes at a bounded rate.
package ratelimiter

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/marmos91/filemq/internal/logger"
)

// RateLimiter is a token bucket over golang.org/x/time/rate. A nil
// *RateLimiter admits everything.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New returns a limiter admitting perSecond requests per second with the
// given burst. A non-positive rate disables limiting and returns nil.
func New(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether one more request fits, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// Middleware rejects requests beyond the limit with 503 Service Unavailable
// before they reach next.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.Allow() {
			logger.Warn("Rejecting handshake from %s: rate limit exceeded", req.RemoteAddr)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many connection attempts", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, req)
	})
}
