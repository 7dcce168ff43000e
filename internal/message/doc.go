// Package message defines the request and outcome values that flow through
// the gateway pipeline, plus the normalized failure reason codes.
package message
