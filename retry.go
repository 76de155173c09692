package tandem

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// BackoffStrategy selects how RetryPolicy.Delay grows between attempts.
type BackoffStrategy int

const (
	// BackoffFixed repeats InitialDelay for every attempt.
	BackoffFixed BackoffStrategy = iota
	// BackoffLinear grows the delay linearly: InitialDelay × attempt.
	BackoffLinear
	// BackoffExponential doubles the delay: InitialDelay × 2^(attempt−1).
	BackoffExponential
	// BackoffJittered is exponential plus up to 30% random jitter.
	BackoffJittered
)

// String returns the lowercase name of the strategy.
func (s BackoffStrategy) String() string {
	switch s {
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	case BackoffJittered:
		return "jittered"
	default:
		return "fixed"
	}
}

// RetryPolicy bounds and paces repeated attempts at a failing operation.
// Total attempts = 1 + MaxRetries.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the computed delay. Zero means no cap.
	MaxDelay time.Duration
	// Strategy selects the growth curve.
	Strategy BackoffStrategy
}

// DefaultRetry is the policy applied to workflow steps that do not declare
// their own: three retries with exponential backoff from one second.
func DefaultRetry() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Strategy:     BackoffExponential,
	}
}

// Delay returns the pause before retry attempt n (1-based). The result is
// monotone non-decreasing for the deterministic strategies and capped at
// MaxDelay. Jittered delays are bounded by 1.3× the exponential delay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch p.Strategy {
	case BackoffLinear:
		d = p.InitialDelay * time.Duration(attempt)
	case BackoffExponential:
		d = p.expDelay(attempt)
	case BackoffJittered:
		exp := p.expDelay(attempt)
		d = exp + time.Duration(rand.Int63n(int64(exp)*3/10+1))
	default:
		d = p.InitialDelay
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}

// expDelay computes InitialDelay × 2^(attempt−1), capped early to avoid
// overflow on large attempt numbers.
func (p RetryPolicy) expDelay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
		if d > 24*time.Hour {
			return 24 * time.Hour
		}
	}
	return d
}

// callWithRetry runs fn up to 1+policy.MaxRetries times, sleeping
// policy.Delay(attempt) between failures. Sleeps are context-aware; a
// cancelled context returns ctx.Err() immediately. After exhaustion the
// last error is wrapped in ErrMaxRetries.
func callWithRetry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, name string, fn func(ctx context.Context) error) error {
	maxAttempts := 1 + policy.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if ctx.Err() != nil {
			return last
		}
		if attempt == maxAttempts {
			break
		}
		delay := policy.Delay(attempt)
		logger.Warn("retrying after failure",
			"operation", name,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", last)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	if maxAttempts == 1 {
		// No retry budget: surface the underlying error directly.
		return last
	}
	logger.Error("all retry attempts exhausted",
		"operation", name,
		"attempts", maxAttempts,
		"error", last)
	return &ErrMaxRetries{Attempts: maxAttempts, Last: last}
}
