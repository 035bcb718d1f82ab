package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRetrier(cfg RetryConfig) (*Retrier, *[]time.Duration) {
	r := NewRetrier(cfg)
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return r, &slept
}

func TestRetrier_SucceedsFirstAttempt(t *testing.T) {
	r, slept := newTestRetrier(RetryConfig{MaxAttempts: 3})

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v, want no sleeps", *slept)
	}
}

func TestRetrier_ExponentialBackoffCapped(t *testing.T) {
	r, slept := newTestRetrier(RetryConfig{
		MaxAttempts:   5,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      400 * time.Millisecond,
		BackoffFactor: 2.0,
	})

	err := r.Do(context.Background(), failingOp)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Do() = %v, want ErrRetriesExhausted", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("Do() = %v, want wrapped cause", err)
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		400 * time.Millisecond, // capped
	}
	if len(*slept) != len(want) {
		t.Fatalf("slept %d times, want %d", len(*slept), len(want))
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("sleep %d = %v, want %v", i, (*slept)[i], d)
		}
	}
}

func TestRetrier_AllowListRejectsImmediately(t *testing.T) {
	r, slept := newTestRetrier(RetryConfig{
		MaxAttempts:         5,
		RetryableSubstrings: []string{"connection refused", "timeout"},
	})

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("permission denied")
	})
	if !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("Do() = %v, want ErrNotRetryable", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for non-matching error)", calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v, want none", *slept)
	}
}

func TestRetrier_AllowListMatchRetries(t *testing.T) {
	r, _ := newTestRetrier(RetryConfig{
		MaxAttempts:         3,
		RetryableSubstrings: []string{"connection refused"},
	})

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetrier_ContextCancelStops(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxAttempts: 10, BaseDelay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errBoom
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
