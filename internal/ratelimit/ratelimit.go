// Package ratelimit implements the per-tool token bucket rate limiter.
// Buckets are created lazily on first use and cached in memory only —
// there is no clustered backing store, so limits are enforced per server
// process, not across a fleet.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bucket configures one token bucket: capacity tokens, refilled at the rate
// needed to add refillTokens every refillInterval.
type Bucket struct {
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
}

// DefaultBucket is applied to any tool without an explicit override.
var DefaultBucket = Bucket{Capacity: 100, RefillTokens: 100, RefillInterval: time.Minute}

// Limiter rate-limits tool invocations by tool name.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	overrides map[string]Bucket
	def       Bucket
}

// New creates a Limiter using def as the fallback bucket for any tool name
// not present in overrides.
func New(def Bucket, overrides map[string]Bucket) *Limiter {
	return &Limiter{
		buckets:   make(map[string]*rate.Limiter),
		overrides: overrides,
		def:       def,
	}
}

// Allow consumes one token from the named tool's bucket. It reports whether
// the token was granted, the number of tokens now remaining, and — when
// denied — the time until the next token becomes available.
func (l *Limiter) Allow(tool string) (allowed bool, remaining int, nanosToRefill int64) {
	limiter := l.limiterFor(tool)
	now := time.Now()

	res := limiter.ReserveN(now, 1)
	if !res.OK() {
		// Burst is 0 or less than the requested 1 token: never satisfiable.
		return false, 0, int64(time.Hour)
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, 0, delay.Nanoseconds()
	}
	return true, int(limiter.TokensAt(now)), 0
}

func (l *Limiter) limiterFor(tool string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.buckets[tool]; ok {
		return existing
	}

	b := l.def
	if override, ok := l.overrides[tool]; ok {
		b = override
	}
	ratePerSec := rate.Limit(float64(b.RefillTokens) / b.RefillInterval.Seconds())
	limiter := rate.NewLimiter(ratePerSec, b.Capacity)
	l.buckets[tool] = limiter
	return limiter
}
