// Package api provides the HTTP REST API and WebSocket stream.
//
// It exposes entity reads, the guarded command surface (circuit state,
// setpoints, heat modes, raw parameter writes), discovery triggering,
// and diagnostics (hub health, transport stats, dead letters). A
// WebSocket endpoint streams entity change events to subscribers.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Handlers read entity state through snapshot accessors only; the live
// graph is never exposed over a goroutine boundary.
//
// Thread Safety: all methods are safe for concurrent use.
package api
