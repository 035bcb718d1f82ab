package discovery

import "errors"

// Sentinel errors for the discovery cycle.
var (
	// ErrInProgress indicates a discovery cycle is already running; the
	// caller's request was rejected, not queued.
	ErrInProgress = errors.New("discovery: cycle already in progress")

	// ErrQueryFailed indicates the hub rejected or failed a category
	// query.
	ErrQueryFailed = errors.New("discovery: hardware definition query failed")
)
