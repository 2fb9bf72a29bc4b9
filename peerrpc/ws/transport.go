package ws

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/postlink/postlink/peerrpc"
)

// Dial returns a Transport that wraps a client-side websocket connection
// with JSON encoding and decoding.
func Dial(ctx context.Context, url string) (peerrpc.Transport, error) {
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return newTransport(conn, ws.StateClientSide), nil
}

// Transport returns a server-side Transport that wraps JSON encoding and
// decoding over an upgraded websocket connection.
func Transport(conn net.Conn) peerrpc.Transport {
	return newTransport(conn, ws.StateServerSide)
}

func newTransport(conn net.Conn, state ws.State) *wsTransport {
	return &wsTransport{
		conn:  conn,
		r:     wsutil.NewReader(conn, state),
		w:     wsutil.NewWriter(conn, state, ws.OpText),
		state: state,
	}
}

var _ peerrpc.Transport = &wsTransport{}

type wsTransport struct {
	conn    net.Conn
	r       *wsutil.Reader
	w       *wsutil.Writer
	state   ws.State
	muWrite sync.Mutex
	closed  atomic.Bool
}

func (t *wsTransport) ReadMessage() (*peerrpc.Message, peerrpc.Origin, error) {
	origin := peerrpc.Origin(t.conn.RemoteAddr().String())
	for {
		header, err := t.r.NextFrame()
		if err != nil {
			t.closed.Store(true)
			return nil, origin, err
		}
		if header.OpCode == ws.OpClose {
			t.closed.Store(true)
			return nil, origin, io.EOF
		}
		if header.OpCode.IsControl() {
			if err := t.r.Discard(); err != nil {
				t.closed.Store(true)
				return nil, origin, err
			}
			continue
		}
		// One message per frame: consume the whole payload before the next
		// NextFrame call.
		payload, err := io.ReadAll(t.r)
		if err != nil {
			t.closed.Store(true)
			return nil, origin, err
		}
		var msg peerrpc.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, origin, err
		}
		return &msg, origin, nil
	}
}

func (t *wsTransport) WriteMessage(msg *peerrpc.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	t.muWrite.Lock()
	defer t.muWrite.Unlock()
	if _, err := t.w.Write(data); err != nil {
		t.closed.Store(true)
		return err
	}
	if err := t.w.Flush(); err != nil {
		t.closed.Store(true)
		return err
	}
	return nil
}

func (t *wsTransport) Closed() bool {
	return t.closed.Load()
}

func (t *wsTransport) Close() error {
	t.closed.Store(true)
	return t.conn.Close()
}
