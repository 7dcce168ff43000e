// Package audit writes an append-only JSONL trail of gateway actions:
// one line per message send and per device session transition.
package audit
