package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mesh-gateway/meshgw/internal/message"
)

// sendResponse is the wire shape of a successful send.
type sendResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	Destination string `json:"destination"`
}

// errorResponse is the wire shape of any failure.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSendSuccess(w http.ResponseWriter, outcome message.Outcome) {
	writeJSON(w, http.StatusOK, sendResponse{
		Success:     true,
		Message:     "Message sent successfully",
		Timestamp:   outcome.Timestamp.Format(time.RFC3339),
		Destination: outcome.Destination,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}
