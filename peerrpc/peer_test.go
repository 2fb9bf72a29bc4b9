package peerrpc

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestPeerCall(t *testing.T) {
	a, _ := servePeers(t, nil, mathFuncs())

	var got int
	if err := a.Call(context.Background(), &got, "add", 2, 3); err != nil {
		t.Fatal(err)
	}
	if want := 5; got != want {
		t.Errorf("got: %d; want %d", got, want)
	}
}

func TestPeerCallRemoteError(t *testing.T) {
	a, _ := servePeers(t, nil, mathFuncs())

	err := a.Call(context.Background(), nil, "fail")
	var remoteErr RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got: %v", err)
	}
	if want := "boom"; remoteErr.Message != want {
		t.Errorf("got: %q; want %q", remoteErr.Message, want)
	}
}

func TestPeerCallPanickingFunction(t *testing.T) {
	a, _ := servePeers(t, nil, mathFuncs())

	err := a.Call(context.Background(), nil, "panics")
	var remoteErr RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got: %v", err)
	}
	if want := "kaboom"; remoteErr.Message != want {
		t.Errorf("got: %q; want %q", remoteErr.Message, want)
	}
}

func TestPeerCallUnknownMethod(t *testing.T) {
	a, _ := servePeers(t, nil, mathFuncs())

	err := a.Call(context.Background(), nil, "missing")
	var remoteErr RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got: %v", err)
	}
}

func TestPeerCallBeforeConnect(t *testing.T) {
	t1, t2 := TransportPipe("peer-a", "peer-b")
	a, err := New(t1, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Call(context.Background(), nil, "add", 2, 3); err != ErrNotConnected {
		t.Errorf("got: %v; want %v", err, ErrNotConnected)
	}

	// Nothing may have been sent.
	select {
	case msg := <-t2.(*pipeTransport).in:
		t.Errorf("unexpected message sent before connect: %s", msg)
	default:
	}
}

func TestPeerCallTimeout(t *testing.T) {
	defer func(d time.Duration) { CallTimeout = d }(CallTimeout)
	CallTimeout = time.Millisecond * 50

	t1, t2 := TransportPipe("peer-a", "peer-b")
	a, err := New(t1, nil)
	if err != nil {
		t.Fatal(err)
	}
	go a.Serve()

	// Scripted peer: answer the handshake, then never answer anything.
	go func() {
		for {
			msg, _, err := t2.ReadMessage()
			if err != nil {
				return
			}
			if msg.Type == TypeConnectAck {
				t2.WriteMessage(&Message{Type: TypeConnectAck, SessionID: msg.SessionID})
			}
		}
	}()
	defer t1.(interface{ Close() error }).Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := a.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	err = a.Call(context.Background(), nil, "slow")
	elapsed := time.Since(start)

	var timeoutErr CallTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected CallTimeoutError, got: %v", err)
	}
	if want := "slow"; timeoutErr.Method != want {
		t.Errorf("got: %q; want %q", timeoutErr.Method, want)
	}
	if elapsed < time.Millisecond*50 {
		t.Errorf("call rejected before the timeout window: %s", elapsed)
	}
	if got, want := a.pending.Len(), 0; got != want {
		t.Errorf("pending calls after timeout: got %d; want %d", got, want)
	}
}

func TestPeerResponseUnknownID(t *testing.T) {
	a, b := servePeers(t, nil, mathFuncs())

	sessionID := b.SessionID()
	if err := b.transport.WriteMessage(&Message{
		Type:      TypeResponse,
		ID:        "never-issued",
		SessionID: sessionID,
	}); err != nil {
		t.Fatal(err)
	}

	// Still connected, still callable, nothing pending.
	var got int
	if err := a.Call(context.Background(), &got, "add", 20, 1); err != nil {
		t.Fatal(err)
	}
	if want := 21; got != want {
		t.Errorf("got: %d; want %d", got, want)
	}
	if got, want := a.pending.Len(), 0; got != want {
		t.Errorf("pending calls: got %d; want %d", got, want)
	}
}

func TestPeerForeignSessionIgnored(t *testing.T) {
	defer func(d time.Duration) { CallTimeout = d }(CallTimeout)
	CallTimeout = time.Millisecond * 50

	t1, t2 := TransportPipe("peer-a", "peer-b")
	b, err := New(t2, mathFuncs())
	if err != nil {
		t.Fatal(err)
	}
	go b.Serve()
	defer t1.(interface{ Close() error }).Close()

	// Handshake manually so we control the session id on later calls.
	if err := t1.WriteMessage(&Message{Type: TypeConnectAck, SessionID: "session-1"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, b.Connected)

	// A call for a stale session is never dispatched and never answered.
	if err := t1.WriteMessage(&Message{
		Type:      TypeCall,
		ID:        "call-1",
		Method:    "add",
		Params:    []byte(`[2,3]`),
		SessionID: "some-other-session",
	}); err != nil {
		t.Fatal(err)
	}

	// Drain for a while: the session-reconciliation ack may arrive, but a
	// response must not.
	deadline := time.After(time.Millisecond * 100)
	for {
		select {
		case msg := <-t1.(*pipeTransport).in:
			if msg.Type == TypeResponse {
				t.Errorf("foreign-session call was answered: %s", msg)
			}
		case <-deadline:
			return
		}
	}
}

func TestPeerSessionReconciliation(t *testing.T) {
	a, b := servePeers(t, mathFuncs(), map[string]interface{}{
		"hello": func() string { return "hi" },
	})

	if a.SessionID() != b.SessionID() {
		t.Errorf("session ids disagree after handshake: %q != %q", a.SessionID(), b.SessionID())
	}

	// Both directions have working proxies.
	var greeting string
	if err := a.Call(context.Background(), &greeting, "hello"); err != nil {
		t.Fatal(err)
	}
	if want := "hi"; greeting != want {
		t.Errorf("got: %q; want %q", greeting, want)
	}
	var sum int
	if err := b.Call(context.Background(), &sum, "add", 4, 4); err != nil {
		t.Fatal(err)
	}
	if want := 8; sum != want {
		t.Errorf("got: %d; want %d", sum, want)
	}
}

func TestPeerProxies(t *testing.T) {
	a, _ := servePeers(t, nil, mathFuncs())

	want := []string{"add", "fail", "panics"}
	if got := a.RemoteMethods(); !reflect.DeepEqual(got, want) {
		t.Errorf("got: %q; want %q", got, want)
	}

	add, err := a.Proxy("add")
	if err != nil {
		t.Fatal(err)
	}
	var got int
	if err := add(context.Background(), &got, 2, 3); err != nil {
		t.Fatal(err)
	}
	if want := 5; got != want {
		t.Errorf("got: %d; want %d", got, want)
	}

	if _, err := a.Proxy("nope"); !errors.As(err, &UnknownMethodError{}) {
		t.Errorf("expected UnknownMethodError, got: %v", err)
	}
}

func TestPeerConnectIdempotent(t *testing.T) {
	a, _ := servePeers(t, nil, mathFuncs())

	// Already connected: returns immediately even with an expired context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Connect(ctx); err != nil {
		t.Errorf("connect while connected should be a no-op, got: %v", err)
	}
}

func TestPeerDisconnectIdempotent(t *testing.T) {
	a, _ := servePeers(t, nil, mathFuncs())

	a.Disconnect("test teardown")
	if a.Connected() {
		t.Error("still connected after disconnect")
	}
	a.Disconnect("test teardown")
	if a.Connected() {
		t.Error("still connected after second disconnect")
	}

	if err := a.Call(context.Background(), nil, "add", 1, 1); err != ErrNotConnected {
		t.Errorf("got: %v; want %v", err, ErrNotConnected)
	}
}

func TestPeerReceiverRegistry(t *testing.T) {
	t1, t2 := TransportPipe("peer-a", "peer-b")
	a, err := New(t1, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewReceiver(t2, &Greeter{})
	if err != nil {
		t.Fatal(err)
	}
	go a.Serve()
	go b.Serve()
	defer t1.(interface{ Close() error }).Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := a.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	var got string
	if err := a.Call(context.Background(), &got, "hello", "peer"); err != nil {
		t.Fatal(err)
	}
	if want := "hello peer"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
}

func TestPeerBidirectionalCallback(t *testing.T) {
	t1, t2 := TransportPipe("peer-a", "peer-b")
	a, err := New(t1, map[string]interface{}{
		"whoami": func() string { return "peer a" },
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewReceiver(t2, &Greeter{})
	if err != nil {
		t.Fatal(err)
	}
	go a.Serve()
	go b.Serve()
	defer t1.(interface{ Close() error }).Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := a.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	// The remote function calls back into us mid-dispatch.
	var got string
	if err := a.Call(context.Background(), &got, "callBack", "whoami"); err != nil {
		t.Fatal(err)
	}
	if want := "relayed peer a"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
}

func TestPeerNilTransport(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("expected error for nil transport")
	}
	if _, err := NewReceiver(nil, &Greeter{}); err == nil {
		t.Error("expected error for nil transport")
	}
}

func TestPeerOriginFilter(t *testing.T) {
	t1, t2 := TransportPipe("good-origin", "peer-b")
	b, err := New(t2, mathFuncs())
	if err != nil {
		t.Fatal(err)
	}
	b.Origin = "expected-origin"
	go b.Serve()
	defer t1.(interface{ Close() error }).Close()

	// The pipe stamps everything from this side as "good-origin", which
	// disagrees with what b expects, so the handshake never lands.
	if err := t1.WriteMessage(&Message{Type: TypeConnectAck, SessionID: "session-x"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond * 50)
	if b.Connected() {
		t.Error("peer connected from a filtered origin")
	}
}
