// Package hub maintains the TCP session to the pool controller.
//
// The hub speaks newline-delimited JSON over a single long-lived
// connection. Requests are fire and forget: responses and unsolicited
// notifications arrive asynchronously on the same stream and are handed
// to the session layer through a callback, which correlates them by
// message id.
//
// # Liveness
//
// The client sends a keepalive ping on a fixed interval and tracks the
// last time any byte moved on the wire. A wire quiet past the silence
// threshold is assumed dead even if the socket still looks open (the
// hub's firmware can wedge without closing), and is torn down for the
// reconnect path to rebuild.
//
// # Reconnection
//
// Connection loss triggers automatic reconnection with exponential
// backoff, throttled so a flapping hub cannot drive a reconnect storm.
// The frame-assembly buffer is reset on every new connection. Higher
// layers can also demand a rebuild through ForceReconnect when the
// stream's content (rather than the socket) is suspect.
package hub
