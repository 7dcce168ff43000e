// Ports (interfaces) for the HTTP layer's dependencies.
package api

import (
	"context"
	"net/http"

	"github.com/mesh-gateway/meshgw/internal/device"
	"github.com/mesh-gateway/meshgw/internal/dispatch"
	"github.com/mesh-gateway/meshgw/internal/gateway"
	"github.com/mesh-gateway/meshgw/internal/locator"
	"github.com/mesh-gateway/meshgw/internal/message"
	"github.com/mesh-gateway/meshgw/internal/telemetry"
)

// MessageSender processes one send request to its terminal outcome.
type MessageSender interface {
	Send(ctx context.Context, req message.SendRequest) (message.Outcome, error)
}

// DeviceInspector reports the device session's current status.
type DeviceInspector interface {
	Snapshot() device.Status
}

// QueueInspector reports dispatch queue counters.
type QueueInspector interface {
	Stats() dispatch.Stats
}

// PortScanner enumerates serial port candidates.
type PortScanner interface {
	Scan(ctx context.Context) ([]locator.Port, error)
}

// TelemetryPort streams events to SSE subscribers.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	SubscriberCount() int
}

// Compile-time assertions that the real implementations satisfy the ports.
var (
	_ MessageSender   = (*gateway.Gateway)(nil)
	_ DeviceInspector = (*device.Session)(nil)
	_ QueueInspector  = (*dispatch.Queue)(nil)
	_ PortScanner     = (*locator.Locator)(nil)
	_ TelemetryPort   = (*telemetry.Hub)(nil)
)
