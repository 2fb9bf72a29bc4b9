// Package natstrans carries peer messages over NATS subjects. NATS delivery
// is fire-and-forget with no ordering guarantee across subjects, which is
// exactly the channel model the protocol is built for.
package natstrans

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/nats-io/nats.go"

	"github.com/postlink/postlink/peerrpc"
)

// Transport binds a peer to a pair of subjects: outbound messages are
// published to the destination subject, inbound messages are consumed from
// the local subject. The local subject doubles as this side's identity
// token: it is attached to every published message as the reply subject, and
// surfaces as the Origin on the receiving side.
func Transport(nc *nats.Conn, localSubject, destSubject string) (peerrpc.Transport, error) {
	if nc == nil {
		return nil, errors.New("nats transport requires a connection")
	}
	msgCh := make(chan *nats.Msg, 64)
	sub, err := nc.ChanSubscribe(localSubject, msgCh)
	if err != nil {
		return nil, err
	}
	return &natsTransport{
		nc:    nc,
		sub:   sub,
		msgCh: msgCh,
		done:  make(chan struct{}),
		local: localSubject,
		dest:  destSubject,
	}, nil
}

var _ peerrpc.Transport = &natsTransport{}

type natsTransport struct {
	nc    *nats.Conn
	sub   *nats.Subscription
	msgCh chan *nats.Msg
	done  chan struct{}
	local string
	dest  string
}

func (t *natsTransport) ReadMessage() (*peerrpc.Message, peerrpc.Origin, error) {
	select {
	case raw := <-t.msgCh:
		var msg peerrpc.Message
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			return nil, peerrpc.Origin(raw.Reply), err
		}
		return &msg, peerrpc.Origin(raw.Reply), nil
	case <-t.done:
		return nil, "", io.EOF
	}
}

func (t *natsTransport) WriteMessage(msg *peerrpc.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return t.nc.PublishMsg(&nats.Msg{
		Subject: t.dest,
		Reply:   t.local,
		Data:    data,
	})
}

func (t *natsTransport) Closed() bool {
	select {
	case <-t.done:
		return true
	default:
	}
	return t.nc.IsClosed() || !t.sub.IsValid()
}

// Close drops the local subscription. The NATS connection itself is owned by
// the caller and is left open.
func (t *natsTransport) Close() error {
	select {
	case <-t.done:
		return nil
	default:
		close(t.done)
	}
	return t.sub.Unsubscribe()
}
