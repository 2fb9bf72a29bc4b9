package peerrpc

import (
	"encoding/json"
	"io"
)

// Origin is an opaque sender-identity token attached to inbound messages by
// the transport, used to filter out traffic from unexpected senders.
type Origin string

// OriginAny matches any sender identity.
const OriginAny Origin = "*"

// Transport is an abstraction for exchanging messages with exactly one
// destination over an asynchronous channel. Implementations decide how a
// message is encoded and what identity token inbound messages carry.
//
// Delivery is fire-and-forget: a successful WriteMessage does not imply the
// peer received anything, and messages may arrive in any order.
type Transport interface {
	// ReadMessage blocks until the next inbound message arrives, returning
	// it together with the sender's identity token.
	ReadMessage() (*Message, Origin, error)
	// WriteMessage sends a message towards the destination.
	WriteMessage(*Message) error
	// Closed reports whether the destination context has terminated. It is
	// polled by the peer's liveness monitor.
	Closed() bool
}

var _ Transport = &ioTransport{}

// IOTransport returns a Transport that wraps JSON encoding and decoding over
// a reader/writer pair. All inbound messages carry the given origin token.
func IOTransport(r io.Reader, w io.Writer, origin Origin) Transport {
	return &ioTransport{
		dec:    json.NewDecoder(r),
		enc:    json.NewEncoder(w),
		origin: origin,
	}
}

type ioTransport struct {
	dec    *json.Decoder
	enc    *json.Encoder
	origin Origin
}

func (t *ioTransport) ReadMessage() (*Message, Origin, error) {
	var msg Message
	if err := t.dec.Decode(&msg); err != nil {
		return nil, t.origin, err
	}
	return &msg, t.origin, nil
}

func (t *ioTransport) WriteMessage(msg *Message) error {
	return t.enc.Encode(msg)
}

func (t *ioTransport) Closed() bool {
	return false
}
