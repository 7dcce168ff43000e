package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mesh-gateway/meshgw/internal/gateway"
	"github.com/mesh-gateway/meshgw/internal/message"
)

// sendMessageRequest is the inbound wire shape. Unknown fields are rejected
// so typos like "mesage" fail loudly instead of sending an empty text.
type sendMessageRequest struct {
	Text              string `json:"text"`
	DestinationNodeID string `json:"destinationNodeId"`
	ChannelIndex      int    `json:"channelIndex"`
}

// RegisterRoutes wires all endpoints onto the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		if s.authMiddleware != nil {
			return s.authMiddleware.RequireAuth(h)
		}
		return h
	}

	mux.HandleFunc("/send_message", wrap(s.handleSendMessage))
	mux.HandleFunc("/api/v1/health", wrap(s.handleHealth))
	mux.HandleFunc("/api/v1/device", wrap(s.handleDevice))
	mux.HandleFunc("/api/v1/ports", wrap(s.handlePorts))
	mux.HandleFunc("/api/v1/telemetry", wrap(s.handleTelemetry))
}

// handleSendMessage accepts one outbound message and blocks until its
// terminal outcome.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req sendMessageRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON data")
		return
	}

	outcome, err := s.sender.Send(r.Context(), message.SendRequest{
		Text:              req.Text,
		DestinationNodeID: req.DestinationNodeID,
		ChannelIndex:      req.ChannelIndex,
	})
	switch {
	case errors.Is(err, gateway.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, errorMessage(outcome))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "message send timed out")
	case err != nil:
		s.logger.Error("send failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	case outcome.Success:
		writeSendSuccess(w, outcome)
	default:
		writeError(w, statusForReason(outcome.Reason), errorMessage(outcome))
	}
}

// handleHealth reports liveness; intentionally cheap and unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.Version,
		"uptimeSec": int64(time.Since(s.startTime).Seconds()),
		"time":      time.Now().UTC().Format(time.RFC3339),
	})
}

// handleDevice reports the session state and queue counters.
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device": s.device.Snapshot(),
		"queue":  s.queue.Stats(),
	})
}

// handlePorts lists serial port candidates with their match verdicts.
func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ports, err := s.scanner.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "serial enumeration failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ports": ports,
		"count": len(ports),
	})
}

// handleTelemetry upgrades the request to an SSE stream.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	// The stream outlives the server's write timeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	if err := s.telemetry.Subscribe(r.Context(), w, r); err != nil {
		s.logger.Warn("telemetry subscription ended with error", "error", err)
	}
}
