// Package mqtt provides the broker connection for the status publisher.
//
// The wrapper around paho.mqtt.golang handles connection lifecycle,
// automatic reconnection with exponential backoff, a Last Will and
// Testament on the retained availability topic, and validated publishes.
//
// # Topic Namespace
//
// Everything lives under the poollogic/ prefix: a retained system
// availability topic, retained per-entity state topics, and an
// unretained pump telemetry stream. Topic strings are built through the
// Topics type rather than assembled ad hoc.
//
// The service is publish-only over MQTT; commands enter through the
// HTTP API, never the broker.
package mqtt
