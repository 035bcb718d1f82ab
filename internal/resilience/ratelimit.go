package resilience

import (
	"sync"
	"time"
)

// RateLimiterConfig holds sliding-window limiter tuning.
type RateLimiterConfig struct {
	// Capacity is the number of calls permitted per window. Default: 20.
	Capacity int

	// Window is the sliding time window. Default: 1s.
	Window time.Duration
}

// RateLimiter is a sliding-window request counter.
//
// A call beyond capacity within the window is rejected outright, never
// queued; a slot frees up only when the oldest counted call ages out of
// the window.
//
// Thread Safety: all methods are safe for concurrent use.
type RateLimiter struct {
	cfg RateLimiterConfig

	mu    sync.Mutex
	times []time.Time

	now func() time.Time
}

// NewRateLimiter creates a limiter with defaults applied.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 20
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	return &RateLimiter{
		cfg: cfg,
		now: time.Now,
	}
}

// Allow records a call attempt. It returns ErrRateLimited when the window
// is already at capacity; the rejected call is not counted.
func (l *RateLimiter) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if len(l.times) >= l.cfg.Capacity {
		return ErrRateLimited
	}
	l.times = append(l.times, now)
	return nil
}

// InWindow returns the number of calls currently counted in the window.
func (l *RateLimiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.times)
}

// evict drops entries older than the window; callers hold l.mu.
func (l *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	idx := 0
	for idx < len(l.times) && !l.times[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.times = l.times[idx:]
	}
}
