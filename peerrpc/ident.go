package peerrpc

import "github.com/google/uuid"

// newSessionID produces the tentative session identifier a peer holds until
// the handshake settles on a shared one.
func newSessionID() string {
	return uuid.NewString()
}

// newCallID produces a fresh call identifier. Collision resistance is what
// guarantees an id is never reused while a call is still pending.
func newCallID() string {
	return uuid.NewString()
}
