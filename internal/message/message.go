package message

import (
	"fmt"
	"time"
)

// BroadcastDestination is the resolved destination when neither a node id
// nor a channel index narrows the recipient.
const BroadcastDestination = "broadcast"

// Reason is a normalized failure reason code, stable across the API surface.
type Reason string

const (
	// ReasonInvalidRequest marks malformed input, rejected before queueing.
	ReasonInvalidRequest Reason = "INVALID_REQUEST"
	// ReasonNotConnected marks dispatch without a live device session after
	// a failed reconnect attempt.
	ReasonNotConnected Reason = "NOT_CONNECTED"
	// ReasonTransportError marks a write/acknowledge failure during an
	// active transmit attempt.
	ReasonTransportError Reason = "TRANSPORT_ERROR"
	// ReasonShuttingDown marks requests accepted after gateway shutdown
	// began.
	ReasonShuttingDown Reason = "SHUTTING_DOWN"
)

// SendRequest is one outbound text message. Values are immutable once
// constructed.
type SendRequest struct {
	// Text is the message body; must be non-empty.
	Text string
	// DestinationNodeID optionally addresses a single node (e.g. "!b4xx8a9c").
	// Takes precedence over ChannelIndex when both are set.
	DestinationNodeID string
	// ChannelIndex optionally addresses a channel. Zero means the primary
	// channel, which resolves to broadcast.
	ChannelIndex int
}

// Destination resolves the addressing actually used: node id over channel
// over broadcast.
func (r SendRequest) Destination() string {
	if r.DestinationNodeID != "" {
		return r.DestinationNodeID
	}
	if r.ChannelIndex > 0 {
		return fmt.Sprintf("channel:%d", r.ChannelIndex)
	}
	return BroadcastDestination
}

// Outcome is the terminal result of processing one SendRequest. Timestamp is
// assigned when the outcome is produced, not when the request was enqueued.
type Outcome struct {
	Success     bool
	Timestamp   time.Time
	Reason      Reason
	Err         string
	Destination string
}

// Succeeded builds a success outcome stamped now.
func Succeeded(destination string) Outcome {
	return Outcome{
		Success:     true,
		Timestamp:   time.Now().UTC(),
		Destination: destination,
	}
}

// Failed builds a failure outcome stamped now.
func Failed(reason Reason, err error) Outcome {
	o := Outcome{
		Success:   false,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	}
	if err != nil {
		o.Err = err.Error()
	}
	return o
}
