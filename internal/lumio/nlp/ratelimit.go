package nlp

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimit is the number of classifier calls allowed per sender
	// per minute when no explicit limit is configured.
	DefaultRateLimit = 20

	// idleEviction is how long a sender's bucket may sit unused before it is
	// dropped.
	idleEviction = 10 * time.Minute
)

// RateLimiter enforces a per-sender token bucket in front of classifier
// calls so one chatty user cannot exhaust the provider quota.
//
// RateLimiter is safe for concurrent use from multiple goroutines.
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	senders  map[string]*senderBucket
	lastScan time.Time
	now      func() time.Time
}

type senderBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter returns a RateLimiter that refills perMinute tokens per
// minute with a burst of perMinute. If perMinute ≤ 0 it defaults to
// DefaultRateLimit.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultRateLimit
	}
	return &RateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		senders: make(map[string]*senderBucket),
		now:     time.Now,
	}
}

// Allow reports whether senderID may make another classifier call now and
// consumes a token when it may.
func (r *RateLimiter) Allow(senderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evictIdle(now)

	b, ok := r.senders[senderID]
	if !ok {
		b = &senderBucket{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.senders[senderID] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// evictIdle drops buckets unused for idleEviction. It scans at most once
// per idleEviction. Caller holds r.mu.
func (r *RateLimiter) evictIdle(now time.Time) {
	if now.Sub(r.lastScan) < idleEviction {
		return
	}
	r.lastScan = now
	for id, b := range r.senders {
		if now.Sub(b.lastSeen) >= idleEviction {
			delete(r.senders, id)
		}
	}
}
