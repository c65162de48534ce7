// Package retry provides exponential-backoff retry logic for long-running
// connections (Telegram long polling, Matrix sync). Per-message calls to
// external services are never retried; they run once and report failure as
// text.
//
// Usage:
//
//	err := retry.Do(ctx, retry.Config{MaxAttempts: 3, InitialDelay: 500*time.Millisecond}, func() error {
//	    return client.Call()
//	})
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts is the total number of attempts (including the first).
	// Zero or negative values retry until ctx is cancelled.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt.
	// Subsequent delays grow exponentially up to MaxDelay.
	InitialDelay time.Duration
	// MaxDelay caps the per-attempt wait.
	MaxDelay time.Duration
	// ShouldRetry is an optional predicate that lets callers classify errors
	// as retryable. When nil, all non-nil errors are retried.
	ShouldRetry func(err error) bool
}

// DefaultConfig provides sensible defaults for short-lived network calls.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

// ReconnectConfig is used by transports that must stay connected for the
// lifetime of the process.
var ReconnectConfig = Config{
	MaxAttempts:  0,
	InitialDelay: time.Second,
	MaxDelay:     time.Minute,
}

// Do calls fn until it returns nil, ShouldRetry rejects its error, ctx is
// cancelled, or cfg.MaxAttempts is exhausted. The error from the last
// attempt is returned; when ctx ends the wait, ctx.Err() is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(err error) bool { return true }
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialDelay
	exp.MaxInterval = cfg.MaxDelay
	exp.MaxElapsedTime = 0

	var policy backoff.BackOff = exp
	if cfg.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(exp, uint64(cfg.MaxAttempts-1))
	}
	policy = backoff.WithContext(policy, ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := fn()
		if err != nil && !shouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		slog.Debug("retry: attempt failed, retrying",
			"attempt", attempt, "max", cfg.MaxAttempts,
			"err", err, "delay", delay)
	}

	return backoff.RetryNotify(op, policy, notify)
}

// Delay returns the wait after the n-th failed attempt (1-based) on the
// curve Do follows, without jitter. Callers that persist their attempt
// count use it to reschedule work across sweeps.
func Delay(cfg Config, attempt int) time.Duration {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialDelay
	exp.MaxInterval = cfg.MaxDelay
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	d := exp.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = exp.NextBackOff()
	}
	return d
}
