// Package lockout tracks failed authentication attempts per identity
// and locks accounts that cross the configured threshold.
package lockout

import (
	"context"
	"log/slog"
	"time"
)

// Store mutates the counters the tracker owns on the identity record.
// The record itself lives in the external user store.
type Store interface {
	// IncrementFailedAttempts bumps the counter and returns the new value.
	IncrementFailedAttempts(ctx context.Context, identityID string) (int, error)
	// Lock sets the lock-expiry timestamp.
	Lock(ctx context.Context, identityID string, until time.Time) error
	// ResetLock zeroes the counter and clears any lock.
	ResetLock(ctx context.Context, identityID string) error
}

// Tracker applies the Active -> Locked -> Active state machine. The
// lock transition happens here when a reported failure crosses the
// threshold; the lock is released either lazily once the expiry passes
// (readers compare the timestamp against now) or eagerly on a reported
// successful authentication.
type Tracker struct {
	store     Store
	threshold int
	duration  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// Config collects tracker settings.
type Config struct {
	Store Store
	// Threshold is the failed-attempt count that triggers a lock.
	Threshold int
	// Duration is how long a lock holds.
	Duration time.Duration
	Logger   *slog.Logger
}

// NewTracker builds a tracker. Threshold defaults to 5, duration to 15m.
func NewTracker(cfg Config) *Tracker {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 5
	}
	duration := cfg.Duration
	if duration <= 0 {
		duration = 15 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:     cfg.Store,
		threshold: threshold,
		duration:  duration,
		logger:    logger,
		now:       time.Now,
	}
}

// ReportFailure records one failed credential check and returns true
// when the identity became locked as a result.
func (t *Tracker) ReportFailure(ctx context.Context, identityID string) (bool, error) {
	attempts, err := t.store.IncrementFailedAttempts(ctx, identityID)
	if err != nil {
		return false, err
	}
	if attempts < t.threshold {
		return false, nil
	}
	until := t.now().Add(t.duration)
	if err := t.store.Lock(ctx, identityID, until); err != nil {
		return false, err
	}
	t.logger.Warn("account locked",
		slog.String("identity", identityID),
		slog.Int("attempts", attempts),
		slog.Time("until", until))
	return true, nil
}

// ReportSuccess records a successful authentication, clearing the
// counter and any standing lock.
func (t *Tracker) ReportSuccess(ctx context.Context, identityID string) error {
	return t.store.ResetLock(ctx, identityID)
}

// Duration exposes the configured lock length.
func (t *Tracker) Duration() time.Duration {
	return t.duration
}
