// Package api exposes the gateway over HTTP: the message send endpoint,
// status and port discovery endpoints, and the telemetry event stream.
package api
