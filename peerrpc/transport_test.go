package peerrpc

import (
	"bytes"
	"io"
	"reflect"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestIOTransport(t *testing.T) {
	var buf bytes.Buffer
	transport := IOTransport(&buf, &buf, "test-origin")

	msg := &Message{
		Type:      TypeKeepAlive,
		SessionID: "session-1",
	}
	if err := transport.WriteMessage(msg); err != nil {
		t.Fatal(err)
	}
	msg2, origin, err := transport.ReadMessage()
	if err != nil {
		t.Error(err)
	}
	if want := Origin("test-origin"); origin != want {
		t.Errorf("got: %q; want %q", origin, want)
	}
	if !reflect.DeepEqual(msg, msg2) {
		t.Errorf("got: %q; want %q", msg2, msg)
	}
}

func TestTransportPipe(t *testing.T) {
	t1, t2 := TransportPipe("origin-1", "origin-2")

	var g errgroup.Group
	g.Go(func() error {
		return t1.WriteMessage(&Message{Type: TypeKeepAlive, SessionID: "session-1"})
	})

	msg, origin, err := t2.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if want := Origin("origin-1"); origin != want {
		t.Errorf("got: %q; want %q", origin, want)
	}
	if want := "session-1"; msg.SessionID != want {
		t.Errorf("got: %q; want %q", msg.SessionID, want)
	}

	if t1.Closed() || t2.Closed() {
		t.Error("pipe closed prematurely")
	}
	if err := t1.(*pipeTransport).Close(); err != nil {
		t.Fatal(err)
	}
	if !t1.Closed() || !t2.Closed() {
		t.Error("pipe not closed after Close")
	}
	if _, _, err := t2.ReadMessage(); err != io.EOF {
		t.Errorf("got: %v; want io.EOF", err)
	}
}
