package device

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-gateway/meshgw/internal/message"
)

// pipeEnd is one side of an in-memory duplex stream.
type pipeEnd struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p pipeEnd) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipeEnd) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p pipeEnd) Close() error {
	_ = p.r.Close()
	return p.w.Close()
}

// newPipePair returns the session side and the device side of a duplex
// in-memory serial link.
func newPipePair() (pipeEnd, pipeEnd) {
	ar, aw := io.Pipe()
	br, bw := io.Pipe()
	return pipeEnd{r: ar, w: bw}, pipeEnd{r: br, w: aw}
}

// runFakeRadio answers every frame according to reply until the link closes.
// A nil reply drops the frame (silent device).
func runFakeRadio(dev io.ReadWriteCloser, reply func(env envelope) *envelope) {
	go func() {
		for {
			env, err := readEnvelope(dev)
			if err != nil {
				return
			}
			if ack := reply(env); ack != nil {
				if err := writeEnvelope(dev, *ack); err != nil {
					return
				}
			}
		}
	}()
}

// ackEverything acknowledges every frame with ackOK.
func ackEverything(env envelope) *envelope {
	return &envelope{ID: env.ID, Kind: kindAck, Status: ackOK}
}

type fakeOpener struct {
	open func(endpoint string, baud int) (io.ReadWriteCloser, error)
}

func (f fakeOpener) OpenPort(endpoint string, baud int) (io.ReadWriteCloser, error) {
	return f.open(endpoint, baud)
}

func newTestSession(t *testing.T, reply func(env envelope) *envelope) *Session {
	t.Helper()
	opener := fakeOpener{open: func(string, int) (io.ReadWriteCloser, error) {
		side, dev := newPipePair()
		runFakeRadio(dev, reply)
		return side, nil
	}}
	return NewSession(opener, 115200, 200*time.Millisecond, 200*time.Millisecond, nil)
}

func TestOpenEstablishesSession(t *testing.T) {
	s := newTestSession(t, ackEverything)
	defer s.Close()

	require.NoError(t, s.Open(context.Background(), "/dev/ttyUSB0"))
	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, "/dev/ttyUSB0", s.Endpoint())
	assert.NoError(t, s.LastError())
}

func TestOpenFailsWhenPortCannotBeOpened(t *testing.T) {
	opener := fakeOpener{open: func(string, int) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such device")
	}}
	s := NewSession(opener, 115200, 200*time.Millisecond, 200*time.Millisecond, nil)

	err := s.Open(context.Background(), "/dev/ttyUSB9")
	require.Error(t, err)
	assert.Equal(t, StateFaulted, s.State())
	assert.Error(t, s.LastError())
}

func TestOpenFaultsOnSilentDevice(t *testing.T) {
	// Device never acknowledges the hello.
	s := newTestSession(t, func(envelope) *envelope { return nil })

	err := s.Open(context.Background(), "/dev/ttyUSB0")
	require.Error(t, err)
	assert.Equal(t, StateFaulted, s.State())
	assert.NotEqual(t, StateConnected, s.State())
}

func TestOpenIsNoOpWhenConnected(t *testing.T) {
	s := newTestSession(t, ackEverything)
	defer s.Close()

	require.NoError(t, s.Open(context.Background(), "/dev/ttyUSB0"))
	require.NoError(t, s.Open(context.Background(), "/dev/ttyUSB0"))
	assert.Equal(t, StateConnected, s.State())
}

func TestTransmitSuccess(t *testing.T) {
	s := newTestSession(t, ackEverything)
	defer s.Close()
	require.NoError(t, s.Open(context.Background(), "/dev/ttyUSB0"))

	outcome, err := s.Transmit(context.Background(), message.SendRequest{Text: "Hello everyone!"})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "broadcast", outcome.Destination)
	assert.False(t, outcome.Timestamp.IsZero())
	assert.Equal(t, StateConnected, s.State())
}

func TestTransmitEchoesNodeDestination(t *testing.T) {
	s := newTestSession(t, ackEverything)
	defer s.Close()
	require.NoError(t, s.Open(context.Background(), "/dev/ttyUSB0"))

	outcome, err := s.Transmit(context.Background(), message.SendRequest{
		Text:              "Hi",
		DestinationNodeID: "!b4xx8a9c",
		ChannelIndex:      3,
	})
	require.NoError(t, err)
	assert.Equal(t, "!b4xx8a9c", outcome.Destination)
}

func TestTransmitRequiresConnected(t *testing.T) {
	s := newTestSession(t, ackEverything)

	outcome, err := s.Transmit(context.Background(), message.SendRequest{Text: "hi"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, outcome.Success)
	assert.Equal(t, message.ReasonNotConnected, outcome.Reason)
}

func TestTransmitTimeoutFaultsSession(t *testing.T) {
	// Acknowledge the hello, then go silent.
	s := newTestSession(t, func(env envelope) *envelope {
		if env.Kind == kindHello {
			return ackEverything(env)
		}
		return nil
	})
	require.NoError(t, s.Open(context.Background(), "/dev/ttyUSB0"))

	outcome, err := s.Transmit(context.Background(), message.SendRequest{Text: "hi"})
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, message.ReasonTransportError, outcome.Reason)
	assert.Equal(t, StateFaulted, s.State())
	assert.Error(t, s.LastError())
}

func TestTransmitNackFaultsSession(t *testing.T) {
	s := newTestSession(t, func(env envelope) *envelope {
		status := ackOK
		if env.Kind == kindText {
			status = ackRejected
		}
		return &envelope{ID: env.ID, Kind: kindAck, Status: status}
	})
	require.NoError(t, s.Open(context.Background(), "/dev/ttyUSB0"))

	outcome, err := s.Transmit(context.Background(), message.SendRequest{Text: "hi"})
	require.ErrorIs(t, err, ErrTransport)
	assert.False(t, outcome.Success)
	assert.Equal(t, StateFaulted, s.State())
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestSession(t, ackEverything)
	require.NoError(t, s.Open(context.Background(), "/dev/ttyUSB0"))

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Equal(t, StateDisconnected, s.State())
}

func TestReopenAfterFault(t *testing.T) {
	var silent atomic.Bool
	silent.Store(true)
	s := newTestSession(t, func(env envelope) *envelope {
		if silent.Load() {
			return nil
		}
		return ackEverything(env)
	})

	require.Error(t, s.Open(context.Background(), "/dev/ttyUSB0"))
	require.Equal(t, StateFaulted, s.State())

	silent.Store(false)
	require.NoError(t, s.Open(context.Background(), "/dev/ttyUSB0"))
	assert.Equal(t, StateConnected, s.State())
	defer s.Close()
}

func TestSnapshotReportsFault(t *testing.T) {
	opener := fakeOpener{open: func(string, int) (io.ReadWriteCloser, error) {
		return nil, errors.New("device unplugged")
	}}
	s := NewSession(opener, 115200, 50*time.Millisecond, 50*time.Millisecond, nil)
	_ = s.Open(context.Background(), "/dev/ttyUSB2")

	st := s.Snapshot()
	assert.Equal(t, "faulted", st.State)
	assert.Equal(t, "/dev/ttyUSB2", st.Endpoint)
	assert.Contains(t, st.LastError, "device unplugged")
}
