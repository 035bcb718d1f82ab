// Package protocol implements the pool hub's wire protocol.
//
// The hub speaks newline-delimited JSON over a persistent TCP session.
// This package provides:
//
//   - Decoder: reassembles messages from arbitrarily chunked byte streams
//     with a bounded line buffer
//   - Request/Message: the typed request and response shapes
//   - SanitizeRequest: outbound message-ID and free-text validation
//
// # Framing
//
// Each message is one JSON object terminated by '\n'. The decoder retains
// an incomplete trailing line until its terminator arrives, drops malformed
// lines individually without disturbing their siblings, and discards the
// whole buffer when it would exceed its cap.
//
// # Message Matching
//
// Commands are fire-and-forget: replies are correlated by messageID and
// object id content, never by blocking on a specific response.
//
// # Thread Safety
//
// Decoder is single-caller (the connection read loop). Request and Message
// values are plain data and safe to share once constructed.
package protocol
