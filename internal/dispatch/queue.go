package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mesh-gateway/meshgw/internal/device"
	"github.com/mesh-gateway/meshgw/internal/message"
)

// Entry is one queued send request with its single-resolution outcome slot.
type Entry struct {
	Request    message.SendRequest
	Seq        uint64
	EnqueuedAt time.Time

	once sync.Once
	done chan message.Outcome
}

// Outcome returns the channel on which the terminal outcome is delivered
// exactly once. A caller that stops waiting does not retract the entry; the
// outcome is still produced and discarded.
func (e *Entry) Outcome() <-chan message.Outcome {
	return e.done
}

func (e *Entry) resolve(o message.Outcome) {
	e.once.Do(func() {
		e.done <- o
	})
}

// Stats is a snapshot of queue counters for the status endpoint and tests.
type Stats struct {
	Depth         int    `json:"depth"`
	Processed     uint64 `json:"processed"`
	OpenAttempts  uint64 `json:"openAttempts"`
	LastEndpoint  string `json:"lastEndpoint,omitempty"`
	WorkerRunning bool   `json:"workerRunning"`
}

// Queue is the ordered, unbounded in-memory send queue. Production rate is
// assumed far below the failure-resolution rate, so growth is accepted
// instead of rejecting requests; depth is exposed for operators.
type Queue struct {
	session  DeviceSession
	locator  EndpointLocator
	observer Observer
	logger   *slog.Logger

	mu      sync.Mutex
	entries []*Entry
	closed  bool
	seq     uint64

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	processed    atomic.Uint64
	openAttempts atomic.Uint64
	lastEndpoint atomic.Value // string
}

// NewQueue creates the queue and starts its worker.
func NewQueue(session DeviceSession, loc EndpointLocator, observer Observer, logger *slog.Logger) *Queue {
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		session:  session,
		locator:  loc,
		observer: observer,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue appends the request to the tail of the queue and returns
// immediately. After Close the entry resolves SHUTTING_DOWN without ever
// reaching the device.
func (q *Queue) Enqueue(req message.SendRequest) *Entry {
	q.mu.Lock()
	q.seq++
	e := &Entry{
		Request:    req,
		Seq:        q.seq,
		EnqueuedAt: time.Now(),
		done:       make(chan message.Outcome, 1),
	}
	if q.closed {
		q.mu.Unlock()
		e.resolve(message.Failed(message.ReasonShuttingDown, nil))
		return e
	}
	q.entries = append(q.entries, e)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return e
}

// run drains entries strictly in FIFO order. A single entry's failure never
// terminates the loop.
func (q *Queue) run() {
	defer close(q.done)
	for {
		e := q.next()
		if e == nil {
			return
		}
		outcome := q.process(e)
		e.resolve(outcome)
		q.processed.Add(1)
		q.observer.EntryResolved(e.Seq, e.Request, outcome, time.Since(e.EnqueuedAt))
	}
}

// next pops the head entry, blocking until one is available or the queue is
// closed and drained.
func (q *Queue) next() *Entry {
	for {
		q.mu.Lock()
		if len(q.entries) > 0 {
			e := q.entries[0]
			q.entries = q.entries[1:]
			q.mu.Unlock()
			return e
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil
		}
		select {
		case <-q.wake:
		case <-q.stop:
		}
	}
}

// process runs one entry against the device session: lazy reconnect first,
// then a single transmit attempt. All failures come back as resolved
// outcomes, never as a worker fault.
func (q *Queue) process(e *Entry) message.Outcome {
	ctx := context.Background()

	if q.session.State() != device.StateConnected {
		// Re-resolve the endpoint on every reconnect; a stale port path
		// must not pin the session to a gone device.
		endpoint, err := q.locator.Locate(ctx)
		if err != nil {
			q.logger.Warn("endpoint discovery failed", "error", err)
			q.observer.SessionOpenFailed("", err)
			return message.Failed(message.ReasonNotConnected, err)
		}

		q.openAttempts.Add(1)
		q.lastEndpoint.Store(endpoint)
		if err := q.session.Open(ctx, endpoint); err != nil {
			q.logger.Warn("device session open failed", "endpoint", endpoint, "error", err)
			q.observer.SessionOpenFailed(endpoint, err)
			return message.Failed(message.ReasonNotConnected, err)
		}
		q.observer.SessionOpened(endpoint)
	}

	outcome, err := q.session.Transmit(ctx, e.Request)
	if err != nil {
		q.logger.Warn("transmit failed", "seq", e.Seq, "error", err)
	}
	return outcome
}

// Stats returns the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	depth := len(q.entries)
	closed := q.closed
	q.mu.Unlock()

	s := Stats{
		Depth:         depth,
		Processed:     q.processed.Load(),
		OpenAttempts:  q.openAttempts.Load(),
		WorkerRunning: !closed,
	}
	if v := q.lastEndpoint.Load(); v != nil {
		s.LastEndpoint = v.(string)
	}
	return s
}

// Close stops the worker and resolves all pending entries as SHUTTING_DOWN.
// It blocks until the worker has exited, then closes the device session.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	pending := q.entries
	q.entries = nil
	q.mu.Unlock()

	close(q.stop)
	for _, e := range pending {
		e.resolve(message.Failed(message.ReasonShuttingDown, nil))
	}
	<-q.done
	return q.session.Close()
}
