package peerrpc

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when a call is issued before the session's
// handshake has completed. Nothing is sent over the wire.
var ErrNotConnected = errors.New("peer is not connected")

// CallTimeoutError is returned when no response for a call arrives within
// the timeout window.
type CallTimeoutError struct {
	Method string
}

func (err CallTimeoutError) Error() string {
	return fmt.Sprintf("call timed out: %q", err.Method)
}

// RemoteError is returned when the remote peer reports a failure while
// executing a call.
type RemoteError struct {
	Method  string
	Message string
}

func (err RemoteError) Error() string {
	return fmt.Sprintf("remote error calling %q: %s", err.Method, err.Message)
}

// UnknownMethodError is returned by Proxy lookups for a method name the
// remote peer did not advertise at handshake time.
type UnknownMethodError struct {
	Method string
}

func (err UnknownMethodError) Error() string {
	return fmt.Sprintf("remote method is not exposed: %q", err.Method)
}
