// Package dispatch serializes send requests into a FIFO queue drained by a
// single worker goroutine.
//
// The worker is the only caller into the device session, which removes the
// need for locking around the serial handle. Each entry gets exactly one
// terminal outcome, in enqueue order: if the session is down the worker
// re-resolves the endpoint and attempts one reconnect; if that fails the
// entry fails fast with NOT_CONNECTED rather than waiting for hardware.
package dispatch
