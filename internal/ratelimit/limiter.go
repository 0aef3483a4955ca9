// Package ratelimit provides an adaptive concurrency gate with backoff and
// a circuit breaker, shared process-wide in front of a rate-limited provider.
//
// Policy: while the breaker is open, callers block until the cool-down
// window has passed (or their context ends) instead of failing fast.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/errclass"
)

// Config tunes an AdaptiveLimiter.
type Config struct {
	MaxConcurrent    int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	BackoffFactor    float64
	RecoveryFactor   float64
	FailureThreshold int
	Cooldown         time.Duration

	// IsRateLimited decides whether a failure should back off the delay.
	// Defaults to the error classifier's rate-limit kind.
	IsRateLimited func(error) bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:    3,
		BaseDelay:        time.Second,
		MaxDelay:         60 * time.Second,
		BackoffFactor:    2.0,
		RecoveryFactor:   0.8,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// AdaptiveLimiter gates calls to a provider.
type AdaptiveLimiter struct {
	cfg    Config
	sem    *semaphore.Weighted
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	delay     time.Duration
	failures  int
	openUntil time.Time
	nextStart time.Time
}

// New builds a limiter. Zero config fields fall back to DefaultConfig.
func New(cfg Config, logger *slog.Logger) *AdaptiveLimiter {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.RecoveryFactor <= 0 || cfg.RecoveryFactor >= 1 {
		cfg.RecoveryFactor = def.RecoveryFactor
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.IsRateLimited == nil {
		cfg.IsRateLimited = func(err error) bool {
			return errclass.Classify(err).Kind == errclass.KindRateLimit
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AdaptiveLimiter{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger: logger,
		now:    time.Now,
		delay:  cfg.BaseDelay,
	}
}

// Do runs fn under the limiter and records its outcome. Calls cut short by
// the caller's own cancellation say nothing about the provider and are not
// recorded.
func (l *AdaptiveLimiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.waitClosed(ctx); err != nil {
		return err
	}

	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)

	if err := sleep(ctx, l.reserveStart()); err != nil {
		return err
	}

	err := fn(ctx)
	switch {
	case err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled)):
		l.logger.Debug("call abandoned by caller", "error", err)
	case err != nil:
		l.RecordFailure(l.cfg.IsRateLimited(err))
	default:
		l.RecordSuccess()
	}
	return err
}

// RecordSuccess closes the breaker and decays the delay toward the base.
func (l *AdaptiveLimiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures = 0
	l.openUntil = time.Time{}
	l.delay = max(time.Duration(float64(l.delay)*l.cfg.RecoveryFactor), l.cfg.BaseDelay)
}

// RecordFailure counts a failure. Rate-limited failures also back off the
// delay. Reaching the threshold opens the breaker for the cool-down.
func (l *AdaptiveLimiter) RecordFailure(rateLimited bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures++
	if rateLimited {
		next := time.Duration(float64(max(l.delay, time.Millisecond)) * l.cfg.BackoffFactor)
		l.delay = min(next, l.cfg.MaxDelay)
	}

	if l.failures >= l.cfg.FailureThreshold && !l.now().Before(l.openUntil) {
		l.openUntil = l.now().Add(l.cfg.Cooldown)
		l.logger.Warn("circuit breaker opened",
			"consecutive_failures", l.failures,
			"cooldown", l.cfg.Cooldown,
			"delay", l.delay,
		)
	}
}

// IsOpen reports whether the breaker is currently open.
func (l *AdaptiveLimiter) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now().Before(l.openUntil)
}

// Delay returns the current inter-call delay.
func (l *AdaptiveLimiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delay
}

// Reset clears all counters.
func (l *AdaptiveLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delay = l.cfg.BaseDelay
	l.failures = 0
	l.openUntil = time.Time{}
	l.nextStart = time.Time{}
}

func (l *AdaptiveLimiter) waitClosed(ctx context.Context) error {
	for {
		l.mu.Lock()
		wait := l.openUntil.Sub(l.now())
		l.mu.Unlock()

		if wait <= 0 {
			return nil
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserveStart claims the next start slot and returns how long to wait for it.
func (l *AdaptiveLimiter) reserveStart() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	start := now
	if l.nextStart.After(now) {
		start = l.nextStart
	}
	l.nextStart = start.Add(l.delay)
	return start.Sub(now)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
