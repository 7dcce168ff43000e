// Package telemetry streams gateway events to subscribers.
//
// The hub keeps a ring buffer of recent events so SSE clients can resume
// with Last-Event-ID, sends periodic heartbeats, and optionally mirrors
// every event to an MQTT broker.
package telemetry
