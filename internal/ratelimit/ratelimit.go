// Package ratelimit provides the per-origin fixed-window admission gate
// used by the voxgate HTTP API.
//
// Each origin key (normally the peer address) gets a counter bucket that
// resets every window. Admission is linearized per key; memory is bounded
// by the number of origins active within the last window because expired
// buckets are evicted opportunistically on the admit path.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// Config holds the limiter tuning knobs.
type Config struct {
	// MaxRequests is the per-origin quota per window. Default: 50.
	MaxRequests int

	// Window is the fixed window length. Default: 60s.
	Window time.Duration
}

// Decision is the outcome of one admission attempt.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// RetryAfter is how long the caller should wait before retrying.
	// Zero when Allowed.
	RetryAfter time.Duration
}

type bucket struct {
	windowStart time.Time
	count       int
}

// Limiter is a fixed-window counter keyed by origin. Safe for concurrent
// use.
type Limiter struct {
	quota  int
	window time.Duration

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time

	now func() time.Time
}

// New creates a [Limiter]. Zero-value config fields are replaced with
// defaults.
func New(cfg Config) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 50
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{
		quota:   cfg.MaxRequests,
		window:  cfg.Window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Admit records one admission attempt for key and decides it. When the
// quota is exhausted the decision carries the time until the window rolls
// over.
func (l *Limiter) Admit(key string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeSweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}

	if now.Sub(b.windowStart) >= l.window {
		b.windowStart = now
		b.count = 0
	}

	if b.count >= l.quota {
		retry := b.windowStart.Add(l.window).Sub(now)
		slog.Warn("rate limit exceeded",
			"key", key,
			"count", b.count,
			"retry_after", retry,
		)
		return Decision{RetryAfter: retry}
	}

	b.count++
	return Decision{Allowed: true}
}

// MaxBucketUsage returns the highest quota consumption across currently
// active origins as a fraction in [0, 1]. Expired buckets do not count.
func (l *Limiter) MaxBucketUsage() float64 {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	max := 0.0
	for _, b := range l.buckets {
		if now.Sub(b.windowStart) >= l.window {
			continue
		}
		if usage := float64(b.count) / float64(l.quota); usage > max {
			max = usage
		}
	}
	return max
}

// MinWindowRemaining returns the shortest time until any active origin's
// window rolls over. Zero when no origin is active.
func (l *Limiter) MinWindowRemaining() time.Duration {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	var min time.Duration
	for _, b := range l.buckets {
		remaining := b.windowStart.Add(l.window).Sub(now)
		if remaining <= 0 {
			continue
		}
		if min == 0 || remaining < min {
			min = remaining
		}
	}
	return min
}

// maybeSweep drops expired buckets at most once per window length.
// Must be called with l.mu held.
func (l *Limiter) maybeSweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.windowStart) >= l.window {
			delete(l.buckets, key)
		}
	}
}

// activeKeys returns the number of tracked origins. Test hook.
func (l *Limiter) activeKeys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
