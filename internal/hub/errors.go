package hub

import "errors"

// Sentinel errors for hub connection operations.
var (
	// ErrConnectionFailed indicates the initial dial or handshake failed.
	ErrConnectionFailed = errors.New("hub: connection failed")

	// ErrNotConnected indicates an operation that needs a live connection
	// was attempted without one.
	ErrNotConnected = errors.New("hub: not connected")

	// ErrSendFailed indicates a request could not be written to the hub.
	ErrSendFailed = errors.New("hub: send failed")

	// ErrClosed indicates the client has been shut down.
	ErrClosed = errors.New("hub: client closed")
)
