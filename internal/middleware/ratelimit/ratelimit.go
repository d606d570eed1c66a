package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"fisse/internal/metrics"
)

// Limiter is a per-client request limiter over a sliding one-minute window.
type Limiter struct {
	requestsPerMinute int
	window            time.Duration
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{RequestsPerMinute: 120}
}

func NewLimiter(config Config) *Limiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	return &Limiter{
		requestsPerMinute: config.RequestsPerMinute,
		window:            time.Minute,
	}
}

// Middleware rejects requests over the limit with 429, keyed by extractIP.
// onLimit replaces the default plain-text response when set.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(rl.window.Seconds()))
	return httprate.Limit(rl.requestsPerMinute, rl.window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return extractIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.RateLimited.Inc()
			w.Header().Set("Retry-After", retryAfter)
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		}),
	)
}
