package protocol

import "errors"

// Domain errors for the wire protocol package.
var (
	// ErrMalformedMessage is returned when a line cannot be decoded as a
	// protocol message.
	ErrMalformedMessage = errors.New("protocol: malformed message")

	// ErrBufferOverflow is returned when the line-assembly buffer exceeds
	// its configured cap. The buffer is discarded and reset.
	ErrBufferOverflow = errors.New("protocol: line buffer overflow")

	// ErrInvalidMessageID is returned when an outbound message ID is not a
	// well-formed UUID.
	ErrInvalidMessageID = errors.New("protocol: invalid message id")

	// ErrUnsafeText is returned when a free-text field contains control
	// sequences that must not reach the wire.
	ErrUnsafeText = errors.New("protocol: unsafe text in field")

	// ErrHubReported is returned when the hub answers a request with a
	// non-success status code.
	ErrHubReported = errors.New("protocol: hub reported error")
)
