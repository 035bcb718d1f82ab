package resilience

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RetryConfig holds retry-with-backoff tuning.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt. Default: 250ms.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Default: 5s.
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay per attempt:
	// delay = BaseDelay × BackoffFactor^(attempt−1), capped at MaxDelay.
	// Default: 2.0.
	BackoffFactor float64

	// RetryableSubstrings, when non-empty, is an allow-list: an error
	// whose text matches none of the substrings fails immediately
	// without further attempts.
	RetryableSubstrings []string
}

// Retrier runs operations with exponential backoff.
//
// Thread Safety: Retrier is stateless after construction and safe for
// concurrent use.
type Retrier struct {
	cfg RetryConfig

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier with defaults applied.
func NewRetrier(cfg RetryConfig) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 2.0
	}
	return &Retrier{
		cfg:   cfg,
		sleep: sleepCtx,
	}
}

// Do runs op until it succeeds, a non-retryable error occurs, the context
// is cancelled, or attempts are exhausted.
//
// Returns:
//   - nil on success
//   - ErrNotRetryable (wrapping the cause) when the allow-list rejects
//   - ErrRetriesExhausted (wrapping the last cause) after the final attempt
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	delay := r.cfg.BaseDelay
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, delay); err != nil {
				return err
			}
			delay = time.Duration(float64(delay) * r.cfg.BackoffFactor)
			if delay > r.cfg.MaxDelay {
				delay = r.cfg.MaxDelay
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !r.retryable(lastErr) {
			return fmt.Errorf("%w: %w", ErrNotRetryable, lastErr)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, r.cfg.MaxAttempts, lastErr)
}

// retryable applies the substring allow-list; an empty list retries
// everything.
func (r *Retrier) retryable(err error) bool {
	if len(r.cfg.RetryableSubstrings) == 0 {
		return true
	}
	text := err.Error()
	for _, sub := range r.cfg.RetryableSubstrings {
		if strings.Contains(text, sub) {
			return true
		}
	}
	return false
}

// sleepCtx waits for d or context cancellation, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
