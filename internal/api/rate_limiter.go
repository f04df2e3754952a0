package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	apperrors "github.com/project-reconciler/internal/errors"
)

// RateLimiter keeps one token bucket per source so a runaway scraper
// cannot starve the others.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	limit     rate.Limit
	burstSize int
}

// NewRateLimiter creates a rate limiter. rps <= 0 disables limiting.
func NewRateLimiter(rps, burst int) *RateLimiter {
	if burst <= 0 {
		burst = rps
	}
	return &RateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		limit:     rate.Limit(rps),
		burstSize: burst,
	}
}

// Enabled reports whether requests are limited at all.
func (rl *RateLimiter) Enabled() bool {
	return rl.limit > 0
}

// getLimiter returns the limiter for a source
func (rl *RateLimiter) getLimiter(source string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[source]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := rl.limiters[source]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.limit, rl.burstSize)
	rl.limiters[source] = limiter
	return limiter
}

// Allow reports whether the source may make a request now.
func (rl *RateLimiter) Allow(source string) bool {
	if !rl.Enabled() {
		return true
	}
	return rl.getLimiter(strings.ToLower(strings.TrimSpace(source))).Allow()
}

// RateLimitMiddleware limits requests by the {source} route variable.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			source := mux.Vars(r)["source"]
			if !rl.Allow(source) {
				w.Header().Set("Retry-After", "1")
				respondServiceError(w, apperrors.NewRateLimitError(1))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
