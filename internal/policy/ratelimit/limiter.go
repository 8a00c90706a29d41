// Package ratelimit enforces a per-domain requests-per-minute ceiling.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fetchwright/fetchwright/internal/metrics"
)

// Limiter manages independent per-domain budgets. Tokens refill at
// rpm/60 per second with a burst of one, so allowed requests are spread
// evenly across the window instead of bursting at window start.
type Limiter struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	defaultRate rate.Limit
}

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerMinute is the per-domain ceiling. Zero or negative
	// disables limiting.
	RequestsPerMinute int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	r := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		r = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}
	return &Limiter{
		limiters:    make(map[string]*rate.Limiter),
		defaultRate: r,
	}
}

// Acquire blocks until a slot is available for domain, respecting the
// context. Budgets for distinct domains never interact; only the map
// lookup is shared, so contention on one domain cannot stall another.
func (l *Limiter) Acquire(ctx context.Context, domain string) error {
	key := strings.ToLower(domain)

	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.defaultRate, 1)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(key, waited)
	}
	return nil
}
