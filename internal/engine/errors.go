package engine

import "errors"

// Sentinel errors for session operations.
var (
	// ErrUnknownObject indicates a command or update referenced an object
	// id absent from the current entity graph.
	ErrUnknownObject = errors.New("engine: unknown object")

	// ErrRequestTimeout indicates a correlated response never arrived.
	ErrRequestTimeout = errors.New("engine: request timed out")

	// ErrNotDiscovered indicates an operation that needs the entity graph
	// ran before the first discovery cycle completed.
	ErrNotDiscovered = errors.New("engine: no discovery cycle has completed")

	// ErrCommandRejected indicates a write command failed permanently and
	// was parked in the dead letter queue.
	ErrCommandRejected = errors.New("engine: command rejected")
)
