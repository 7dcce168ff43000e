// Package gateway is the single entry point external transports call to
// send a message: validate, enqueue, wait for the terminal outcome.
package gateway
