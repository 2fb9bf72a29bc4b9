package natstrans

import (
	"context"
	"testing"
	"time"

	"github.com/postlink/postlink/internal/natstest"
	"github.com/postlink/postlink/peerrpc"
)

func TestNATSPeers(t *testing.T) {
	_, nc := natstest.NewServerAndConn(t)

	ta, err := Transport(nc, "peer.a", "peer.b")
	if err != nil {
		t.Fatal(err)
	}
	tb, err := Transport(nc, "peer.b", "peer.a")
	if err != nil {
		t.Fatal(err)
	}

	a, err := peerrpc.New(ta, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := peerrpc.New(tb, map[string]interface{}{
		"add": func(x, y int) int { return x + y },
	})
	if err != nil {
		t.Fatal(err)
	}
	go a.Serve()
	go b.Serve()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := a.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	var got int
	if err := a.Call(ctx, &got, "add", 40, 2); err != nil {
		t.Fatal(err)
	}
	if want := 42; got != want {
		t.Errorf("got: %d; want %d", got, want)
	}
}

func TestNATSOrigin(t *testing.T) {
	_, nc := natstest.NewServerAndConn(t)

	ta, err := Transport(nc, "origin.a", "origin.b")
	if err != nil {
		t.Fatal(err)
	}
	tb, err := Transport(nc, "origin.b", "origin.a")
	if err != nil {
		t.Fatal(err)
	}

	if err := ta.WriteMessage(&peerrpc.Message{Type: peerrpc.TypeKeepAlive, SessionID: "session-1"}); err != nil {
		t.Fatal(err)
	}
	msg, origin, err := tb.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if want := peerrpc.Origin("origin.a"); origin != want {
		t.Errorf("got: %q; want %q", origin, want)
	}
	if want := "session-1"; msg.SessionID != want {
		t.Errorf("got: %q; want %q", msg.SessionID, want)
	}
}

func TestNATSClosed(t *testing.T) {
	_, nc := natstest.NewServerAndConn(t)

	transport, err := Transport(nc, "closed.a", "closed.b")
	if err != nil {
		t.Fatal(err)
	}
	if transport.Closed() {
		t.Error("transport closed prematurely")
	}
	if err := transport.(interface{ Close() error }).Close(); err != nil {
		t.Fatal(err)
	}
	if !transport.Closed() {
		t.Error("transport not marked closed")
	}
}
