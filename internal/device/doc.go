// Package device owns the single serial session to the mesh radio.
//
// A Session is the only holder of the transport handle. It exposes a
// synchronous single-attempt Transmit primitive and an explicit Open for
// reconnection; retry policy lives with the dispatch worker, not here.
// Concurrent Transmit calls are not supported — the dispatch worker is the
// sole caller.
package device
