package peerrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CallTimeout is the window each outbound call has to receive its response
// before it is failed locally. It applies per call; an elapsed timeout does
// not affect the session or any other in-flight call.
var CallTimeout = 10 * time.Second

// DefaultKeepAliveInterval is the rate advisory keep-alive frames are sent
// at while connected, unless overridden on the Peer.
const DefaultKeepAliveInterval = 30 * time.Second

// Service represents a peer that can be called. Exposed functions receive a
// context carrying their own peer, acquirable with CtxPeer, so they can
// initiate calls back to the caller.
type Service interface {
	Call(ctx context.Context, result interface{}, method string, params ...interface{}) error
}

var _ Service = &Peer{}

// ErrContextMissingValue is returned when a context is missing an expected value.
type ErrContextMissingValue struct {
	Key serviceContext
}

func (err ErrContextMissingValue) Error() string {
	return fmt.Sprintf("context missing value: %s", err.Key)
}

type serviceContext string

var ctxPeer serviceContext = "peer"

// CtxPeer returns the Peer that dispatched the current call from a context
// used within an exposed function. This is useful for calling back.
func CtxPeer(ctx context.Context) (Service, error) {
	p, ok := ctx.Value(ctxPeer).(Service)
	if !ok {
		return nil, ErrContextMissingValue{ctxPeer}
	}
	return p, nil
}

// RemoteFunc invokes one remote method that the peer advertised at handshake
// time, blocking until it resolves, fails remotely, or times out locally.
type RemoteFunc func(ctx context.Context, result interface{}, params ...interface{}) error

// Peer is one endpoint of the RPC link. It holds the session state, the
// in-flight call table, and the registry of locally exposed functions.
//
// Exported fields must be set before Serve or Connect are called, and not
// modified afterwards.
type Peer struct {
	// Origin is the expected sender identity. Inbound messages whose origin
	// disagrees are silently dropped. OriginAny accepts anything.
	Origin Origin

	// KeepAliveInterval overrides DefaultKeepAliveInterval when non-zero.
	KeepAliveInterval time.Duration

	// PendingLimit is the number of in-flight calls to hold before oldest
	// entries get discarded. PendingDiscard is how many get discarded when
	// the limit is reached. Zero values disable eviction.
	PendingLimit   int
	PendingDiscard int

	transport Transport
	registry  map[string]Method
	pending   pendingTable

	mu          sync.Mutex
	sessionID   string
	connected   bool
	connectedCh chan struct{}
	remote      map[string]RemoteFunc
	heartbeatOn bool
}

// New returns a Peer bound to the given transport, exposing the given
// mapping of method names to plain functions. The mapping may be nil for a
// call-only peer. The exposed set is fixed for the peer's lifetime.
func New(transport Transport, funcs map[string]interface{}) (*Peer, error) {
	if transport == nil {
		return nil, errors.New("peer requires a valid transport")
	}
	registry, err := Funcs(funcs)
	if err != nil {
		return nil, err
	}
	return &Peer{
		Origin:      OriginAny,
		transport:   transport,
		registry:    registry,
		sessionID:   newSessionID(),
		connectedCh: make(chan struct{}),
	}, nil
}

// NewReceiver returns a Peer exposing the exported methods of the given
// receiver, names lowercased on the first letter.
func NewReceiver(transport Transport, receiver interface{}) (*Peer, error) {
	if transport == nil {
		return nil, errors.New("peer requires a valid transport")
	}
	registry, err := Methods(receiver)
	if err != nil {
		return nil, err
	}
	return &Peer{
		Origin:      OriginAny,
		transport:   transport,
		registry:    registry,
		sessionID:   newSessionID(),
		connectedCh: make(chan struct{}),
	}, nil
}

// SessionID returns the current session identifier. Before the handshake
// settles it is a local tentative value.
func (p *Peer) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// Connected reports whether the handshake has completed.
func (p *Peer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// ExposedMethods returns the sorted names of the locally exposed functions.
func (p *Peer) ExposedMethods() []string {
	names := make([]string, 0, len(p.registry))
	for name := range p.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RemoteMethods returns the sorted names the remote peer advertised at
// handshake time. Empty until connected.
func (p *Peer) RemoteMethods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.remote))
	for name := range p.remote {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Proxy returns the local stub for a remote method built at handshake time.
func (p *Peer) Proxy(method string) (RemoteFunc, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn, ok := p.remote[method]
	if !ok {
		return nil, UnknownMethodError{method}
	}
	return fn, nil
}

// Serve runs the peer's read loop until the transport fails, handling
// inbound messages in delivery order. The liveness poll runs alongside for
// the duration of the loop.
func (p *Peer) Serve() error {
	p.pending.Limit = p.PendingLimit
	p.pending.Discard = p.PendingDiscard

	stopPoll := make(chan struct{})
	defer close(stopPoll)
	go p.livenessPoll(stopPoll)

	for {
		msg, origin, err := p.transport.ReadMessage()
		if err != nil {
			// A failing read usually means the peer context terminated;
			// the poll may not get a tick in before we return, so check
			// here too.
			if p.transport.Closed() {
				p.Disconnect("target closed")
			}
			return err
		}
		if p.Origin != OriginAny && origin != p.Origin {
			logger.Printf("Serve(): Dropping message from unexpected origin %q", origin)
			continue
		}
		p.handleMessage(msg)
	}
}

func (p *Peer) handleMessage(msg *Message) {
	switch msg.Type {
	case TypeCall:
		go p.handleCall(msg)
	case TypeResponse:
		if !p.pending.Deliver(msg) {
			// Already resolved, timed out, or never issued.
			logger.Printf("Dropping response with no pending call: %s", msg.ID)
		}
	case TypeConnectAck:
		p.handleConnectAck(msg)
	case TypeConnectError:
		// Diagnostic only, no state transition.
		logger.Printf("Peer reported handshake error: %s", msg.Error)
	case TypeKeepAlive:
		// Advisory, no side effect.
	case TypeConnect:
		// Reserved, unused by this handshake path.
	default:
		logger.Printf("Dropping invalid message: %s", msg)
	}
}

// Connect announces local presence and blocks until the handshake completes.
// It is idempotent: if already connected it returns immediately, and every
// concurrent caller shares the same completion signal. There is no handshake
// timeout; cancel the context to stop waiting.
func (p *Peer) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.connected {
		p.mu.Unlock()
		return nil
	}
	ch := p.connectedCh
	p.mu.Unlock()

	if err := p.sendAck(); err != nil {
		return err
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendAck broadcasts the handshake announcement: the current session id and
// the locally exposed method names.
func (p *Peer) sendAck() error {
	return p.transport.WriteMessage(&Message{
		Type:             TypeConnectAck,
		SessionID:        p.SessionID(),
		ExposedFunctions: p.ExposedMethods(),
	})
}

// handleConnectAck processes a peer announcement. A differing session id is
// adopted as authoritative and the announcement is re-broadcast so the other
// side re-synchronizes. Duplicate announcements after connecting are
// processed again; only the one-shot connected signal is consumed.
func (p *Peer) handleConnectAck(msg *Message) {
	p.mu.Lock()
	readvertise := false
	if msg.SessionID != "" && msg.SessionID != p.sessionID {
		p.sessionID = msg.SessionID
		readvertise = true
	}
	p.remote = p.buildProxies(msg.ExposedFunctions)
	wasConnected := p.connected
	p.connected = true
	ch := p.connectedCh
	startHeartbeat := false
	if !p.heartbeatOn {
		p.heartbeatOn = true
		startHeartbeat = true
	}
	p.mu.Unlock()

	if readvertise {
		if err := p.sendAck(); err != nil {
			logger.Printf("Failed to re-announce after session reconciliation: %s", err)
		}
	}
	if !wasConnected {
		logger.Printf("Connected with session %s, remote exposes %d methods", msg.SessionID, len(msg.ExposedFunctions))
		close(ch)
	}
	if startHeartbeat {
		go p.heartbeat()
	}
}

// buildProxies constructs the remote proxy set from advertised method names.
func (p *Peer) buildProxies(methods []string) map[string]RemoteFunc {
	remote := make(map[string]RemoteFunc, len(methods))
	for _, method := range methods {
		method := method
		remote[method] = func(ctx context.Context, result interface{}, params ...interface{}) error {
			return p.Call(ctx, result, method, params...)
		}
	}
	return remote
}

// Call sends an outbound call and blocks until its response arrives, the
// call timeout elapses, or the context is cancelled. It fails immediately
// with ErrNotConnected before sending anything if the handshake has not
// completed.
func (p *Peer) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return ErrNotConnected
	}
	sessionID := p.sessionID
	p.mu.Unlock()

	rawParams, err := json.Marshal(params)
	if err != nil {
		return err
	}
	id := newCallID()
	msg := &Message{
		Type:      TypeCall,
		ID:        id,
		Method:    method,
		Params:    rawParams,
		SessionID: sessionID,
	}

	ch := p.pending.Add(id, method)
	if err := p.transport.WriteMessage(msg); err != nil {
		p.pending.Remove(id)
		return err
	}

	timeout := time.NewTimer(CallTimeout)
	defer timeout.Stop()

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return RemoteError{Method: method, Message: resp.Error}
		}
		if result == nil || len(resp.Result) == 0 || string(resp.Result) == "null" {
			// No result
			return nil
		}
		return json.Unmarshal(resp.Result, result)
	case <-timeout.C:
		p.pending.Remove(id)
		return CallTimeoutError{Method: method}
	case <-ctx.Done():
		p.pending.Remove(id)
		return ctx.Err()
	}
}

// handleCall executes an inbound call against the local registry and replies
// with its outcome. Requests for a foreign or stale session are ignored
// without an error reply, preventing cross-talk from a replaced peer.
func (p *Peer) handleCall(msg *Message) {
	p.mu.Lock()
	sessionID := p.sessionID
	p.mu.Unlock()
	if msg.SessionID != sessionID {
		logger.Printf("Ignoring call for foreign session %q: %s", msg.SessionID, msg.Method)
		return
	}

	resp := &Message{
		Type:      TypeResponse,
		ID:        msg.ID,
		SessionID: sessionID,
	}

	res, err := p.invoke(msg)
	if err != nil {
		resp.Error = err.Error()
	} else if resp.Result, err = json.Marshal(res); err != nil {
		resp.Result = nil
		resp.Error = fmt.Sprintf("failed to encode result: %s", err)
	}

	if err := p.transport.WriteMessage(resp); err != nil {
		logger.Printf("Failed to send response for %q: %s", msg.Method, err)
	}
}

// invoke looks up and runs an exposed function. A missing method and a
// panicking function both surface through the same error path, so a remote
// caller observes a generic failure message either way.
func (p *Peer) invoke(msg *Message) (res interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%v", r)
		}
	}()
	m, ok := p.registry[msg.Method]
	if !ok {
		return nil, fmt.Errorf("no exposed function: %s", msg.Method)
	}
	ctx := context.WithValue(context.Background(), ctxPeer, p)
	return m.CallJSON(ctx, msg.Params)
}

// Disconnect tears the session down: pending calls are abandoned without
// being resolved (their callers only fail via their own timeout), the remote
// proxy set is cleared, and the heartbeat stops at its next tick. Calling it
// while already disconnected is a no-op. No message is sent to the peer.
func (p *Peer) Disconnect(reason string) {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return
	}
	p.connected = false
	p.remote = nil
	p.connectedCh = make(chan struct{})
	p.mu.Unlock()

	p.pending.Flush()
	logger.Printf("Disconnected: %s", reason)
}
