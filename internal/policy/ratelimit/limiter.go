// Package ratelimit paces fetches with a token bucket per host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/edital-crawler/internal/edital"
)

// Config holds rate limiter configuration. A non-positive PerHostRPS
// disables limiting.
type Config struct {
	PerHostRPS float64
	Burst      int
	// OnDelay, when set, is called with every wait longer than a millisecond.
	OnDelay func(host string, waited time.Duration)
}

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	onDelay  func(string, time.Duration)
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.PerHostRPS)
	if cfg.PerHostRPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		onDelay:  cfg.OnDelay,
	}
}

// Wait blocks until the locator's host has a token or ctx is done.
func (l *Limiter) Wait(ctx context.Context, locator string) error {
	host := hostOf(locator)
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	if waited := time.Since(start); waited > time.Millisecond && l.onDelay != nil {
		l.onDelay(host, waited)
	}
	return nil
}

// Wrap returns a Fetcher that waits on l before every fetch.
func (l *Limiter) Wrap(f edital.Fetcher) edital.Fetcher {
	return &fetcher{next: f, limiter: l}
}

type fetcher struct {
	next    edital.Fetcher
	limiter *Limiter
}

func (f *fetcher) Fetch(ctx context.Context, locator string) (string, error) {
	if err := f.limiter.Wait(ctx, locator); err != nil {
		return "", err
	}
	return f.next.Fetch(ctx, locator)
}

func hostOf(locator string) string {
	u, err := url.Parse(locator)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
