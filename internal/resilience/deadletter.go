package resilience

import (
	"sync"
	"time"
)

// DeadLetter records one command that exhausted its retries.
type DeadLetter struct {
	// ObjectName is the target hub object, when known.
	ObjectName string `json:"object_name,omitempty"`

	// Command is the wire command name.
	Command string `json:"command"`

	// Payload is the encoded request, for diagnostics.
	Payload string `json:"payload,omitempty"`

	// Reason is the final error text.
	Reason string `json:"reason"`

	// FailedAt is when the command was abandoned.
	FailedAt time.Time `json:"failed_at"`
}

// DeadLetterConfig holds dead-letter queue bounds.
type DeadLetterConfig struct {
	// MaxEntries caps the queue; the oldest entry is dropped to make
	// room. Default: 100.
	MaxEntries int

	// MaxAge expires entries on read. Default: 1h.
	MaxAge time.Duration
}

// DeadLetterQueue is a bounded FIFO of abandoned commands.
//
// The queue exists for diagnostics only; entries are never replayed.
//
// Thread Safety: all methods are safe for concurrent use.
type DeadLetterQueue struct {
	cfg DeadLetterConfig

	mu      sync.Mutex
	entries []DeadLetter

	now func() time.Time
}

// NewDeadLetterQueue creates a queue with defaults applied.
func NewDeadLetterQueue(cfg DeadLetterConfig) *DeadLetterQueue {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	return &DeadLetterQueue{
		cfg: cfg,
		now: time.Now,
	}
}

// Add records an abandoned command, dropping the oldest entry when full.
func (q *DeadLetterQueue) Add(letter DeadLetter) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if letter.FailedAt.IsZero() {
		letter.FailedAt = q.now()
	}

	q.expire()
	if len(q.entries) >= q.cfg.MaxEntries {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, letter)
}

// Entries returns a snapshot of current, unexpired entries, oldest first.
func (q *DeadLetterQueue) Entries() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.expire()
	out := make([]DeadLetter, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of unexpired entries.
func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.expire()
	return len(q.entries)
}

// expire drops entries older than MaxAge; callers hold q.mu.
func (q *DeadLetterQueue) expire() {
	cutoff := q.now().Add(-q.cfg.MaxAge)
	idx := 0
	for idx < len(q.entries) && q.entries[idx].FailedAt.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		q.entries = q.entries[idx:]
	}
}
