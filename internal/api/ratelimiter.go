package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Probes and scrapes are never throttled.
var unlimitedPaths = map[string]struct{}{
	"/api/health": {},
	"/metrics":    {},
}

type rateLimiter interface {
	Allow() bool
}

type tokenBucket struct {
	limiter *rate.Limiter
}

func newTokenBucketLimiter(ratePerSecond float64, burst int) *tokenBucket {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

func (b *tokenBucket) Allow() bool {
	if b == nil || b.limiter == nil {
		return true
	}
	return b.limiter.Allow()
}

// retryAfter is the wait for one token, rounded up to whole seconds.
func (b *tokenBucket) retryAfter() time.Duration {
	if b == nil || b.limiter == nil || b.limiter.Limit() <= 0 {
		return time.Second
	}
	secs := math.Ceil(1 / float64(b.limiter.Limit()))
	return time.Duration(secs) * time.Second
}

func rateLimitMiddleware(limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	wait := time.Second
	if b, ok := limiter.(*tokenBucket); ok {
		wait = b.retryAfter()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := unlimitedPaths[r.URL.Path]; ok || limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(wait/time.Second)))
		writeError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded, retry after the Retry-After interval")
	})
}
