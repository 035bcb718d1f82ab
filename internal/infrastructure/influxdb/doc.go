// Package influxdb records pool telemetry as time series.
//
// The wrapper around influxdb-client-go handles connection lifecycle,
// non-blocking batched writes, and async error reporting. Three
// measurements cover the domain: water_temperature (per body, with
// setpoints), sensor (air and water probes), and pump (derived speed,
// flow, and power samples).
//
// Writes never block the caller. Points are buffered and flushed on the
// configured interval; write failures surface through the SetOnError
// callback rather than a return value.
package influxdb
