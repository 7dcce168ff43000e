package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-gateway/meshgw/internal/message"
)

type auditCall struct {
	action   string
	endpoint string
	outcome  message.Outcome
	err      error
}

type fakeAudit struct {
	mu    sync.Mutex
	calls []auditCall
}

func (f *fakeAudit) LogSend(req message.SendRequest, outcome message.Outcome, wait time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, auditCall{action: "sendMessage", outcome: outcome})
}

func (f *fakeAudit) LogSession(action, endpoint string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, auditCall{action: action, endpoint: endpoint, err: err})
}

func (f *fakeAudit) all() []auditCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]auditCall(nil), f.calls...)
}

func TestEntryResolvedPublishesSentEvent(t *testing.T) {
	sink := &recordingSink{}
	hub := NewHub(16, time.Minute, sink, nil)
	defer hub.Stop()
	auditLog := &fakeAudit{}
	r := NewRecorder(hub, auditLog)

	req := message.SendRequest{Text: "hi", DestinationNodeID: "!b4xx8a9c"}
	r.EntryResolved(7, req, message.Succeeded(req.Destination()), 12*time.Millisecond)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventMessageSent, events[0].Type)
	assert.Equal(t, "!b4xx8a9c", events[0].Data["destination"])
	assert.Equal(t, uint64(7), events[0].Data["seq"])

	calls := auditLog.all()
	require.Len(t, calls, 1)
	assert.Equal(t, "sendMessage", calls[0].action)
	assert.True(t, calls[0].outcome.Success)
}

func TestEntryResolvedPublishesFailureWithReason(t *testing.T) {
	sink := &recordingSink{}
	hub := NewHub(16, time.Minute, sink, nil)
	defer hub.Stop()
	r := NewRecorder(hub, nil)

	req := message.SendRequest{Text: "hi"}
	outcome := message.Failed(message.ReasonTransportError, errors.New("ack timeout"))
	r.EntryResolved(1, req, outcome, time.Millisecond)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventMessageFailed, events[0].Type)
	assert.Equal(t, "TRANSPORT_ERROR", events[0].Data["reason"])
	assert.Equal(t, "ack timeout", events[0].Data["error"])
}

func TestSessionTransitionsRecorded(t *testing.T) {
	sink := &recordingSink{}
	hub := NewHub(16, time.Minute, sink, nil)
	defer hub.Stop()
	auditLog := &fakeAudit{}
	r := NewRecorder(hub, auditLog)

	r.SessionOpened("/dev/ttyUSB0")
	r.SessionOpenFailed("", errors.New("no mesh radio serial port found"))

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, EventSessionOpened, events[0].Type)
	assert.Equal(t, "/dev/ttyUSB0", events[0].Data["endpoint"])
	assert.Equal(t, EventSessionFault, events[1].Type)
	assert.NotContains(t, events[1].Data, "endpoint")
	assert.Equal(t, "no mesh radio serial port found", events[1].Data["error"])

	calls := auditLog.all()
	require.Len(t, calls, 2)
	assert.NoError(t, calls[0].err)
	assert.Error(t, calls[1].err)
}

func TestRecorderWithNilTargetsIsSafe(t *testing.T) {
	r := NewRecorder(nil, nil)
	req := message.SendRequest{Text: "hi"}

	assert.NotPanics(t, func() {
		r.EntryResolved(1, req, message.Succeeded("broadcast"), 0)
		r.SessionOpened("/dev/ttyUSB0")
		r.SessionOpenFailed("/dev/ttyUSB0", errors.New("boom"))
	})
}
