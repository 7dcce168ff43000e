package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Event is one telemetry event. IDs are monotonically increasing and assigned
// by the hub at publish time.
type Event struct {
	ID   int64          `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Sink receives a copy of every published event (the MQTT mirror).
type Sink interface {
	Publish(event Event)
}

type client struct {
	id     string
	events chan Event
}

// Hub fans published events out to SSE subscribers.
//
// Lock ordering: only h.mu exists; event delivery to clients is non-blocking
// (slow subscribers drop events rather than stalling the publisher).
type Hub struct {
	heartbeat time.Duration
	logger    *slog.Logger
	sink      Sink

	mu       sync.RWMutex
	clients  map[string]*client
	buffer   []Event
	capacity int
	nextID   int64
	stopped  bool
}

// NewHub creates a hub with a ring buffer of the given capacity.
func NewHub(capacity int, heartbeat time.Duration, sink Sink, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		heartbeat: heartbeat,
		logger:    logger,
		sink:      sink,
		clients:   make(map[string]*client),
		capacity:  capacity,
	}
}

// Publish assigns the next event ID, buffers the event, and delivers it to
// all current subscribers and the sink. Never blocks.
func (h *Hub) Publish(eventType string, data map[string]any) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.nextID++
	event := Event{ID: h.nextID, Type: eventType, Data: data}

	h.buffer = append(h.buffer, event)
	if len(h.buffer) > h.capacity {
		h.buffer = h.buffer[len(h.buffer)-h.capacity:]
	}

	for _, c := range h.clients {
		select {
		case c.events <- event:
		default:
			h.logger.Warn("telemetry client lagging, dropping event", "client", c.id, "event", event.ID)
		}
	}
	sink := h.sink
	h.mu.Unlock()

	if sink != nil {
		sink.Publish(event)
	}
}

// Subscribe streams events to an SSE client until its connection closes or
// the hub stops. Events already buffered past the client's Last-Event-ID
// header are replayed first.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported by response writer")
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var lastID int64
	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			lastID = id
		}
	}

	c := &client{
		id:     fmt.Sprintf("client_%d", time.Now().UnixNano()),
		events: make(chan Event, 64),
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return fmt.Errorf("telemetry hub stopped")
	}
	// Queue the replay before registering so ordering holds.
	for _, event := range h.buffer {
		if event.ID > lastID {
			select {
			case c.events <- event:
			default:
			}
		}
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
	}()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.Context().Done():
			return nil
		case event := <-c.events:
			if err := writeSSE(w, event); err != nil {
				return err
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

// writeSSE writes one event in SSE wire format.
func writeSSE(w http.ResponseWriter, event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)
	return err
}

// Stop rejects further publishes and subscriptions. Connected clients are
// released by their own contexts.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
}

// SubscriberCount returns the number of connected clients.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
