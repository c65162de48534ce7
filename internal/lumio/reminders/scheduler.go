package reminders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bdobrica/Lumio/common/retry"
	"github.com/bdobrica/Lumio/common/spec/envelope"
	"github.com/bdobrica/Lumio/internal/lumio/observability"
)

// DefaultInterval is how often the scheduler sweeps for due reminders.
const DefaultInterval = time.Minute

// sweepBatch bounds how many reminders one sweep delivers.
const sweepBatch = 100

// DeliveryRetry spaces out redelivery of a reminder whose Notify failed.
// After MaxAttempts failures the reminder is marked failed.
var DeliveryRetry = retry.Config{
	MaxAttempts:  5,
	InitialDelay: time.Minute,
	MaxDelay:     time.Hour,
}

// errNoNotifier is the failure recorded for a platform with no registered
// transport. It is retried because the transport may be configured again.
var errNoNotifier = errors.New("reminders: no notifier registered for platform")

// clock is an interface over time.Now and time.After so tests can advance
// time without sleeping.
type clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Scheduler periodically delivers due reminders through the notifier
// registered for each reminder's platform.
type Scheduler struct {
	store     *Store
	notifiers map[envelope.Platform]Notifier
	interval  time.Duration
	retry     retry.Config
	clk       clock
}

// NewScheduler returns a Scheduler sweeping every interval (DefaultInterval
// when interval <= 0).
func NewScheduler(store *Store, interval time.Duration) *Scheduler {
	return newSchedulerWithClock(store, interval, realClock{})
}

func newSchedulerWithClock(store *Store, interval time.Duration, clk clock) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		store:     store,
		notifiers: make(map[envelope.Platform]Notifier),
		interval:  interval,
		retry:     DeliveryRetry,
		clk:       clk,
	}
}

// Register sets the notifier for platform. Call before Run.
func (s *Scheduler) Register(platform envelope.Platform, n Notifier) {
	s.notifiers[platform] = n
}

// Run sweeps until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("reminder scheduler started", "interval", s.interval)
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("reminder sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("reminder scheduler stopped")
			return nil
		case <-s.clk.After(s.interval):
		}
	}
}

// RunOnce delivers every reminder due at the current time and returns how
// many were sent. Each reminder is sent before it is marked sent, so a crash
// between the two steps re-sends it on the next sweep. A failed delivery is
// retried with backoff and abandoned after the retry budget or when the
// chat refuses it.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.clk.Now()
	due, err := s.store.Due(ctx, now, sweepBatch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, r := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		logger := slog.With("reminder_id", r.ID.String(), "platform", string(r.Platform))

		n, ok := s.notifiers[r.Platform]
		if !ok {
			observability.RemindersSent.WithLabelValues(string(r.Platform), "no_notifier").Inc()
			s.failed(ctx, logger, r, errNoNotifier)
			continue
		}
		if err := n.Notify(ctx, r); err != nil {
			result := "error"
			switch {
			case errors.Is(err, ErrUnsupported):
				result = "unsupported"
			case errors.Is(err, ErrUndeliverable):
				result = "undeliverable"
			}
			observability.RemindersSent.WithLabelValues(string(r.Platform), result).Inc()
			s.failed(ctx, logger, r, err)
			continue
		}
		if err := s.store.MarkSent(ctx, r.ID, s.clk.Now()); err != nil {
			observability.RemindersSent.WithLabelValues(string(r.Platform), "mark_failed").Inc()
			logger.Error("reminder sent but not marked", "err", err)
			continue
		}
		observability.RemindersSent.WithLabelValues(string(r.Platform), "sent").Inc()
		logger.Info("reminder sent")
		sent++
	}
	return sent, nil
}

// failed records a delivery failure: the reminder either waits for its next
// attempt or, when it cannot succeed, is marked failed.
func (s *Scheduler) failed(ctx context.Context, logger *slog.Logger, r Reminder, cause error) {
	attempts := r.Attempts + 1
	permanent := errors.Is(cause, ErrUnsupported) || errors.Is(cause, ErrUndeliverable)
	if permanent || (s.retry.MaxAttempts > 0 && attempts >= s.retry.MaxAttempts) {
		if err := s.store.MarkFailed(ctx, r.ID); err != nil {
			logger.Error("could not mark reminder failed", "err", err)
			return
		}
		logger.Warn("reminder abandoned", "attempts", attempts, "err", cause)
		return
	}

	retryAt := s.clk.Now().Add(retry.Delay(s.retry, attempts))
	if err := s.store.RecordFailure(ctx, r.ID, retryAt); err != nil {
		logger.Error("could not record reminder failure", "err", err)
		return
	}
	logger.Warn("reminder delivery failed", "attempts", attempts, "retry_at", retryAt, "err", cause)
}
