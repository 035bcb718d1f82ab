package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BreakerState is the circuit breaker's current state.
type BreakerState int

// Breaker states.
const (
	// BreakerClosed passes calls through and counts failures.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls without invoking the operation.
	BreakerOpen

	// BreakerHalfOpen probes with live calls after the reset timeout.
	BreakerHalfOpen
)

// String returns the state name for logging.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker tuning.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from closed to open. Default: 5.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the breaker again. Default: 2.
	SuccessThreshold int

	// ResetTimeout is how long the breaker stays open before the next
	// call is allowed through as a half-open probe. Default: 30s.
	ResetTimeout time.Duration
}

// Breaker is a circuit breaker for the hub connect path.
//
// State machine: closed → open after FailureThreshold consecutive
// failures → half-open once ResetTimeout elapses → closed after
// SuccessThreshold consecutive successes. Any half-open failure reopens
// the breaker immediately.
//
// Thread Safety: all methods are safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	openedAt    time.Time
	lastFailure error

	// now is injectable for tests.
	now func() time.Time
}

// NewBreaker creates a breaker with defaults applied.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{
		cfg: cfg,
		now: time.Now,
	}
}

// Do runs op through the breaker.
//
// While open, Do returns ErrBreakerOpen without invoking op; the error
// wraps the failure that tripped the breaker for diagnostics.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := op(ctx)
	b.record(err)
	return err
}

// State returns the breaker's current state, accounting for reset-timeout
// expiry.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

// allow checks whether a call may proceed, transitioning open → half-open
// when the reset timeout has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case BreakerOpen:
		if b.lastFailure != nil {
			return fmt.Errorf("%w: last failure: %w", ErrBreakerOpen, b.lastFailure)
		}
		return ErrBreakerOpen
	case BreakerHalfOpen:
		b.state = BreakerHalfOpen
		return nil
	default:
		return nil
	}
}

// stateLocked returns the effective state; callers hold b.mu.
func (b *Breaker) stateLocked() BreakerState {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

// record applies an operation outcome to the state machine.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.stateLocked()

	if err == nil {
		switch state {
		case BreakerHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.state = BreakerClosed
				b.failures = 0
				b.successes = 0
				b.lastFailure = nil
			} else {
				b.state = BreakerHalfOpen
			}
		default:
			b.state = BreakerClosed
			b.failures = 0
		}
		return
	}

	b.lastFailure = err
	switch state {
	case BreakerHalfOpen:
		// Any half-open failure reopens immediately.
		b.trip()
	default:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
}
