package extract

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Backoff computes the wait after a quota failure before the next backend.
type Backoff interface {
	Delay(quotaHits int, hint time.Duration) time.Duration
}

// ExponentialBackoff doubles from Base for each quota hit in the same
// extraction, never exceeding Max.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponentialBackoff builds a policy with sane defaults.
func NewExponentialBackoff(base, maxDelay time.Duration) ExponentialBackoff {
	if base <= 0 {
		base = 2 * time.Second
	}
	if maxDelay < base {
		maxDelay = base
	}
	return ExponentialBackoff{Base: base, Max: maxDelay}
}

// Delay returns the bounded wait for the given zero-based quota hit. A
// positive hint (Retry-After) replaces the computed value, still capped by Max.
func (b ExponentialBackoff) Delay(quotaHits int, hint time.Duration) time.Duration {
	if hint > 0 {
		return min(hint, b.Max)
	}
	delay := float64(b.Base) * math.Pow(2, float64(quotaHits))
	if delay > float64(b.Max) {
		return b.Max
	}
	return time.Duration(delay)
}

// Sleeper pauses between attempts; tests swap it for a recorder.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
