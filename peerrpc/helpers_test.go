package peerrpc

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mathFuncs is the registry most tests expose on the answering side.
func mathFuncs() map[string]interface{} {
	return map[string]interface{}{
		"add": func(x, y int) int { return x + y },
		"fail": func() error {
			return errors.New("boom")
		},
		"panics": func() string {
			panic("kaboom")
		},
	}
}

type Greeter struct{}

func (g *Greeter) Hello(name string) string {
	return "hello " + name
}

func (g *Greeter) CallBack(ctx context.Context, method string) (string, error) {
	peer, err := CtxPeer(ctx)
	if err != nil {
		return "", err
	}
	var got string
	if err := peer.Call(ctx, &got, method); err != nil {
		return "", err
	}
	return "relayed " + got, nil
}

// servePeers wires two peers over an in-memory pipe, starts both read loops,
// and completes the handshake. Serve goroutines stop when the pipe closes at
// test cleanup.
func servePeers(t *testing.T, funcsA, funcsB map[string]interface{}) (*Peer, *Peer) {
	t.Helper()

	t1, t2 := TransportPipe("peer-a", "peer-b")
	a, err := New(t1, funcsA)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(t2, funcsB)
	if err != nil {
		t.Fatal(err)
	}

	go a.Serve()
	go b.Serve()
	t.Cleanup(func() {
		t1.(interface{ Close() error }).Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("handshake never completed: %s", err)
	}
	waitFor(t, b.Connected)
	return a, b
}

// waitFor polls a condition until it holds or the test deadline is near.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second * 5)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 5)
	}
	t.Fatal("condition never held")
}
