// Websocket transport using Gorilla's Websocket library
package gorilla

import (
	"context"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/postlink/postlink/peerrpc"
)

// Dial returns a Transport that wraps a client-side websocket connection
// with JSON encoding and decoding.
func Dial(ctx context.Context, url string) (peerrpc.Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

// Transport wraps an upgraded websocket connection.
func Transport(conn *websocket.Conn) peerrpc.Transport {
	return &wsTransport{conn: conn}
}

var _ peerrpc.Transport = &wsTransport{}

type wsTransport struct {
	muWrite sync.Mutex
	muRead  sync.Mutex
	closed  atomic.Bool
	conn    *websocket.Conn
}

func (t *wsTransport) ReadMessage() (*peerrpc.Message, peerrpc.Origin, error) {
	t.muRead.Lock()
	defer t.muRead.Unlock()
	origin := peerrpc.Origin(t.conn.RemoteAddr().String())
	var msg peerrpc.Message
	if err := t.conn.ReadJSON(&msg); err != nil {
		t.closed.Store(true)
		return nil, origin, err
	}
	return &msg, origin, nil
}

func (t *wsTransport) WriteMessage(msg *peerrpc.Message) error {
	t.muWrite.Lock()
	defer t.muWrite.Unlock()
	if err := t.conn.WriteJSON(msg); err != nil {
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

// Handler upgrades inbound HTTP requests to websocket peers. The factory is
// called with the upgraded transport and should return a configured Peer;
// the handler then serves it until the connection drops.
func Handler(factory func(peerrpc.Transport) (*peerrpc.Peer, error)) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade error from %s: %s", r.RemoteAddr, err)
			return
		}
		defer conn.Close()
		transport := &wsTransport{conn: conn}
		peer, err := factory(transport)
		if err != nil {
			log.Printf("peer setup error from %s: %s", r.RemoteAddr, err)
			return
		}
		if err := peer.Serve(); err != nil && err != io.EOF {
			log.Printf("peerrpc.Peer.Serve() error: %s", err)
		}
	}
}
