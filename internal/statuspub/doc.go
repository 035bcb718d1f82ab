// Package statuspub publishes entity state and pump telemetry.
//
// The Publisher sits between the engine and the outside world: it
// receives entity change notifications, snapshots the changed entity,
// and emits a retained JSON state document on the entity's MQTT topic.
// Pump changes additionally produce an unretained telemetry sample with
// the derived speed, flow, and power values. When a telemetry store is
// configured, temperature and pump samples are recorded there too.
//
// # Ordering and Backpressure
//
// Notifications arrive on the hub's dispatch goroutine and must not
// block. The publisher queues them and drains the queue on a single
// worker goroutine; publishes are ordered per entity, and a full queue
// drops events rather than stalling the hub. Dropping is safe because
// every publish carries the entity's complete current state.
package statuspub
