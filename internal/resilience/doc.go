// Package resilience provides generic robustness wrappers for hub
// operations: circuit breaker, retry with exponential backoff, health
// monitoring, sliding-window rate limiting, and a dead-letter queue.
//
// None of the primitives carry protocol knowledge; they wrap operations as
// plain functions and are owned by the session that uses them; there are
// no process-wide singletons.
//
// # Circuit Breaker
//
// closed → open after N consecutive failures → half-open after the reset
// timeout → closed after M consecutive half-open successes. Any half-open
// failure reopens immediately. Wraps the hub connect path.
//
// # Retry
//
// Exponential backoff (base × factor^(attempt−1), capped). An optional
// allow-list of retryable error substrings makes everything else fail
// fast.
//
// # Health Monitor
//
// Consecutive failures, last-success timestamp, and a bounded rolling
// window of response times; unhealthy at the failure threshold or past
// the staleness window.
//
// # Rate Limiter
//
// Sliding-window counter; calls beyond capacity are rejected, not queued.
//
// # Dead-Letter Queue
//
// Bounded-size, bounded-age FIFO of commands that exhausted retries, for
// diagnostics only, with no automatic replay.
//
// # Thread Safety
//
// All types are safe for concurrent use from multiple goroutines.
package resilience
