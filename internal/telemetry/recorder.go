package telemetry

import (
	"time"

	"github.com/mesh-gateway/meshgw/internal/dispatch"
	"github.com/mesh-gateway/meshgw/internal/message"
)

// Event types emitted at the command boundary.
const (
	EventMessageSent   = "messageSent"
	EventMessageFailed = "messageFailed"
	EventSessionOpened = "sessionOpened"
	EventSessionFault  = "sessionFault"
)

// AuditLogger records send actions; implemented by the audit package.
type AuditLogger interface {
	LogSend(req message.SendRequest, outcome message.Outcome, wait time.Duration)
	LogSession(action, endpoint string, err error)
}

// Recorder adapts dispatch queue notifications into telemetry events and
// audit records.
type Recorder struct {
	hub   *Hub
	audit AuditLogger
}

var _ dispatch.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder. Either target may be nil.
func NewRecorder(hub *Hub, audit AuditLogger) *Recorder {
	return &Recorder{hub: hub, audit: audit}
}

// EntryResolved publishes the outcome of one dispatched request.
func (r *Recorder) EntryResolved(seq uint64, req message.SendRequest, outcome message.Outcome, wait time.Duration) {
	if r.audit != nil {
		r.audit.LogSend(req, outcome, wait)
	}
	if r.hub == nil {
		return
	}

	data := map[string]any{
		"seq":         seq,
		"destination": req.Destination(),
		"ts":          outcome.Timestamp.Format(time.RFC3339),
	}
	if outcome.Success {
		r.hub.Publish(EventMessageSent, data)
		return
	}
	data["reason"] = string(outcome.Reason)
	if outcome.Err != "" {
		data["error"] = outcome.Err
	}
	r.hub.Publish(EventMessageFailed, data)
}

// SessionOpened publishes a reconnect success.
func (r *Recorder) SessionOpened(endpoint string) {
	if r.audit != nil {
		r.audit.LogSession("sessionOpen", endpoint, nil)
	}
	if r.hub != nil {
		r.hub.Publish(EventSessionOpened, map[string]any{
			"endpoint": endpoint,
			"ts":       time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// SessionOpenFailed publishes a reconnect failure.
func (r *Recorder) SessionOpenFailed(endpoint string, err error) {
	if r.audit != nil {
		r.audit.LogSession("sessionOpen", endpoint, err)
	}
	if r.hub != nil {
		data := map[string]any{
			"ts": time.Now().UTC().Format(time.RFC3339),
		}
		if endpoint != "" {
			data["endpoint"] = endpoint
		}
		if err != nil {
			data["error"] = err.Error()
		}
		r.hub.Publish(EventSessionFault, data)
	}
}
