package api

import (
	"net/http"

	"github.com/mesh-gateway/meshgw/internal/message"
)

// statusForReason maps terminal failure reasons to HTTP status codes.
// Validation failures are client errors; connectivity failures are server
// errors distinguishing "no session" from "transmit broke mid-flight".
func statusForReason(reason message.Reason) int {
	switch reason {
	case message.ReasonInvalidRequest:
		return http.StatusBadRequest
	case message.ReasonNotConnected:
		return http.StatusServiceUnavailable
	case message.ReasonTransportError:
		return http.StatusBadGateway
	case message.ReasonShuttingDown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage renders the caller-visible error string: the reason code,
// with detail appended when the failure carries one.
func errorMessage(outcome message.Outcome) string {
	if outcome.Err != "" {
		return string(outcome.Reason) + ": " + outcome.Err
	}
	return string(outcome.Reason)
}
