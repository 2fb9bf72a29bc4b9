package peerrpc

import (
	"io"
	"sync"
)

// TransportPipe returns two connected in-memory transports: messages written
// to one are delivered to the other. Each side's inbound messages carry the
// other side's origin token. Useful for testing and for embedders that
// co-locate both peers in one process.
func TransportPipe(origin1, origin2 Origin) (Transport, Transport) {
	ch1 := make(chan *Message, 16)
	ch2 := make(chan *Message, 16)
	done := make(chan struct{})
	var once sync.Once
	t1 := &pipeTransport{in: ch1, out: ch2, origin: origin2, done: done, once: &once}
	t2 := &pipeTransport{in: ch2, out: ch1, origin: origin1, done: done, once: &once}
	return t1, t2
}

var _ Transport = &pipeTransport{}

type pipeTransport struct {
	in     <-chan *Message
	out    chan<- *Message
	origin Origin
	done   chan struct{}
	once   *sync.Once
}

func (t *pipeTransport) ReadMessage() (*Message, Origin, error) {
	select {
	case msg := <-t.in:
		return msg, t.origin, nil
	case <-t.done:
		return nil, t.origin, io.EOF
	}
}

func (t *pipeTransport) WriteMessage(msg *Message) error {
	select {
	case t.out <- msg:
		return nil
	case <-t.done:
		return io.ErrClosedPipe
	default:
		// Full buffer on a fire-and-forget channel: the message is lost,
		// same as the underlying medium dropping it.
		return nil
	}
}

func (t *pipeTransport) Closed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Close terminates both ends of the pipe. Safe to call more than once.
func (t *pipeTransport) Close() error {
	t.once.Do(func() {
		close(t.done)
	})
	return nil
}
