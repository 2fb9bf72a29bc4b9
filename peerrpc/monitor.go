package peerrpc

import "time"

// PollInterval is the rate the liveness poll probes the transport for
// peer-context termination.
var PollInterval = time.Second

// heartbeat emits advisory keep-alive frames while connected. A tick
// observed while disconnected stops the loop. Inbound keep-alives are
// accepted elsewhere with no side effect; missed heartbeats from the peer do
// not disconnect anything.
func (p *Peer) heartbeat() {
	interval := p.KeepAliveInterval
	if interval == 0 {
		interval = DefaultKeepAliveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		connected := p.connected
		sessionID := p.sessionID
		if !connected {
			p.heartbeatOn = false
		}
		p.mu.Unlock()
		if !connected {
			return
		}
		if err := p.transport.WriteMessage(&Message{
			Type:      TypeKeepAlive,
			SessionID: sessionID,
		}); err != nil {
			logger.Printf("Failed to send keep-alive: %s", err)
		}
	}
}

// livenessPoll watches for the remote context terminating, independent of
// connection state. The first observation triggers a local disconnect and
// stops the poll permanently.
func (p *Peer) livenessPoll(stop <-chan struct{}) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if p.transport.Closed() {
				p.Disconnect("target closed")
				return
			}
		case <-stop:
			return
		}
	}
}
