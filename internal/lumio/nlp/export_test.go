package nlp

import "time"

// SetClock replaces the limiter's time source.
func (r *RateLimiter) SetClock(now func() time.Time) { r.now = now }

// Tracked returns how many sender buckets are held.
func (r *RateLimiter) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.senders)
}
