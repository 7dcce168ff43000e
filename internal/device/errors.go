package device

import "errors"

var (
	// ErrNotConnected is returned when an operation requires a live session.
	ErrNotConnected = errors.New("device session not connected")
	// ErrTransport is returned when a write/acknowledge cycle fails; the
	// session transitions to Faulted.
	ErrTransport = errors.New("device transport error")
	// ErrAckTimeout is the transport failure for a device that accepted the
	// write but never acknowledged.
	ErrAckTimeout = errors.New("timed out waiting for device acknowledgment")
	// ErrNack is the transport failure for a device that rejected the frame.
	ErrNack = errors.New("device rejected the message")
)
