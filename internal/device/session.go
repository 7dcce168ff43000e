package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.bug.st/serial"

	"github.com/mesh-gateway/meshgw/internal/message"
)

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFaulted
)

// String returns the state name used in logs and the status endpoint.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// PortOpener opens the raw serial stream. The production implementation
// wraps go.bug.st/serial; tests inject fakes.
type PortOpener interface {
	OpenPort(endpoint string, baudRate int) (io.ReadWriteCloser, error)
}

// SerialOpener opens real serial ports at 8N1 with the configured baud rate.
type SerialOpener struct{}

// OpenPort opens the serial port.
func (SerialOpener) OpenPort(endpoint string, baudRate int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(endpoint, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

// Status is a read-only snapshot of the session for the status endpoint.
type Status struct {
	State     string `json:"state"`
	Endpoint  string `json:"endpoint,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

// Session owns the single live serial connection to the radio.
//
// Open and Transmit block on I/O and must only be called by the dispatch
// worker; State, Endpoint and Snapshot are safe for concurrent readers.
type Session struct {
	opener          PortOpener
	baudRate        int
	openTimeout     time.Duration
	transmitTimeout time.Duration
	logger          *slog.Logger

	mu       sync.Mutex
	state    State
	endpoint string
	port     io.ReadWriteCloser
	lastErr  error
}

// NewSession creates a disconnected session. A nil opener selects the real
// serial implementation.
func NewSession(opener PortOpener, baudRate int, openTimeout, transmitTimeout time.Duration, logger *slog.Logger) *Session {
	if opener == nil {
		opener = SerialOpener{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		opener:          opener,
		baudRate:        baudRate,
		openTimeout:     openTimeout,
		transmitTimeout: transmitTimeout,
		logger:          logger,
	}
}

// Open establishes the serial session on the given endpoint within the
// configured open timeout: it opens the port and performs a hello/ack
// exchange to verify a responsive radio. On success the session is
// Connected; on any failure it is Faulted with the error captured.
func (s *Session) Open(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.endpoint = endpoint
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.openTimeout)
	defer cancel()

	port, err := s.openPort(ctx, endpoint)
	if err != nil {
		s.fault(nil, fmt.Errorf("open %s: %w", endpoint, err))
		return err
	}

	// Verify the device answers before declaring the session live.
	hello := envelope{ID: uuid.NewString(), Kind: kindHello}
	if _, err := exchange(ctx, port, hello); err != nil {
		err = fmt.Errorf("hello exchange on %s: %w", endpoint, err)
		s.fault(port, err)
		return err
	}

	s.mu.Lock()
	s.port = port
	s.state = StateConnected
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info("device session established", "endpoint", endpoint, "baud", s.baudRate)
	return nil
}

// openPort races the blocking serial open against ctx. If the open wins
// after cancellation, the port is closed to avoid leaking the handle.
func (s *Session) openPort(ctx context.Context, endpoint string) (io.ReadWriteCloser, error) {
	type result struct {
		port io.ReadWriteCloser
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		port, err := s.opener.OpenPort(endpoint, s.baudRate)
		ch <- result{port: port, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil && r.port != nil {
				_ = r.port.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		return r.port, r.err
	}
}

// Transmit performs exactly one framed write/acknowledge cycle for the
// request. It is valid only in the Connected state. On any transport failure
// the session transitions to Faulted and the returned outcome carries
// TRANSPORT_ERROR; Transmit never retries.
func (s *Session) Transmit(ctx context.Context, req message.SendRequest) (message.Outcome, error) {
	s.mu.Lock()
	if s.state != StateConnected || s.port == nil {
		s.mu.Unlock()
		return message.Failed(message.ReasonNotConnected, ErrNotConnected), ErrNotConnected
	}
	port := s.port
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.transmitTimeout)
	defer cancel()

	env := envelope{
		ID:      uuid.NewString(),
		Kind:    kindText,
		Text:    req.Text,
		Dest:    req.DestinationNodeID,
		Channel: uint32(req.ChannelIndex),
	}

	ack, err := exchange(ctx, port, env)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrTransport, err)
		s.fault(port, err)
		s.logger.Warn("transmit failed", "endpoint", s.Endpoint(), "error", err)
		return message.Failed(message.ReasonTransportError, err), err
	}
	if ack.Status != ackOK {
		err = fmt.Errorf("%w: %w (status %d)", ErrTransport, ErrNack, ack.Status)
		s.fault(port, err)
		return message.Failed(message.ReasonTransportError, err), err
	}

	dest := req.Destination()
	s.logger.Debug("message transmitted", "id", env.ID, "destination", dest)
	return message.Succeeded(dest), nil
}

// exchange writes one envelope and reads frames until the matching ack
// arrives or ctx expires. Non-matching frames (unsolicited radio traffic)
// are skipped.
func exchange(ctx context.Context, port io.ReadWriteCloser, env envelope) (envelope, error) {
	if err := writeEnvelope(port, env); err != nil {
		return envelope{}, err
	}

	type result struct {
		ack envelope
		err error
	}
	ch := make(chan result, 1)

	go func() {
		for {
			got, err := readEnvelope(port)
			if err != nil {
				ch <- result{err: err}
				return
			}
			if got.Kind == kindAck && got.ID == env.ID {
				ch <- result{ack: got}
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		// The reader goroutine stays blocked until the port is closed,
		// which the caller does when it faults the session.
		return envelope{}, ErrAckTimeout
	case r := <-ch:
		return r.ack, r.err
	}
}

// Close releases the transport handle. It is idempotent and safe to call
// from any state.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.port != nil {
		err = s.port.Close()
		s.port = nil
	}
	s.state = StateDisconnected
	return err
}

// fault releases the given port and records the failure.
func (s *Session) fault(port io.ReadWriteCloser, err error) {
	if port != nil {
		_ = port.Close()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == port {
		s.port = nil
	}
	s.state = StateFaulted
	s.lastErr = err
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Endpoint returns the endpoint of the current or last open attempt.
func (s *Session) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// LastError returns the captured error from the last fault, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Snapshot returns the session status for the API.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state.String(), Endpoint: s.endpoint}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
