// Ports (interfaces) for the dispatch worker's dependencies.
package dispatch

import (
	"context"
	"time"

	"github.com/mesh-gateway/meshgw/internal/device"
	"github.com/mesh-gateway/meshgw/internal/locator"
	"github.com/mesh-gateway/meshgw/internal/message"
)

// DeviceSession is the minimal device surface the worker needs.
type DeviceSession interface {
	State() device.State
	Open(ctx context.Context, endpoint string) error
	Transmit(ctx context.Context, req message.SendRequest) (message.Outcome, error)
	Close() error
}

// EndpointLocator re-resolves the serial endpoint before every reconnect
// attempt, so an unplugged/replugged device on a different port is found.
type EndpointLocator interface {
	Locate(ctx context.Context) (string, error)
}

// Observer receives queue lifecycle notifications; used to feed the audit
// trail and the telemetry stream from the command boundary.
type Observer interface {
	EntryResolved(seq uint64, req message.SendRequest, outcome message.Outcome, wait time.Duration)
	SessionOpened(endpoint string)
	SessionOpenFailed(endpoint string, err error)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) EntryResolved(uint64, message.SendRequest, message.Outcome, time.Duration) {}
func (NopObserver) SessionOpened(string)                                                      {}
func (NopObserver) SessionOpenFailed(string, error)                                           {}

// Compile-time assertions that the real implementations satisfy the ports.
var (
	_ DeviceSession   = (*device.Session)(nil)
	_ EndpointLocator = (*locator.Locator)(nil)
	_ Observer        = NopObserver{}
)
