package resilience

import "errors"

// Domain errors for the resilience package.
var (
	// ErrBreakerOpen is returned when the circuit breaker is open and the
	// wrapped operation was not invoked.
	ErrBreakerOpen = errors.New("resilience: circuit breaker open")

	// ErrRateLimited is returned when a call exceeds the sliding-window
	// capacity. Rejected calls are never queued.
	ErrRateLimited = errors.New("resilience: rate limit exceeded")

	// ErrNotRetryable is returned when an error does not match the
	// configured retryable allow-list and retrying was abandoned.
	ErrNotRetryable = errors.New("resilience: error not retryable")

	// ErrRetriesExhausted is returned when all retry attempts failed.
	ErrRetriesExhausted = errors.New("resilience: retries exhausted")
)
