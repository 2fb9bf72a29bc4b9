package peerrpc

import (
	"sort"
	"sync"
	"time"
)

type pendingCall struct {
	msgChan   chan *Message
	method    string
	timestamp time.Time
}

type pendingItem struct {
	key       string
	timestamp time.Time
}

type pendingQueue []pendingItem

func (p pendingQueue) Len() int {
	return len(p)
}

func (p pendingQueue) Less(i, j int) bool {
	return p[i].timestamp.Before(p[j].timestamp)
}

func (p pendingQueue) Swap(i, j int) {
	p[i], p[j] = p[j], p[i]
}

func pendingOldest(pending map[string]pendingCall, num int) pendingQueue {
	if num > len(pending) {
		num = len(pending)
	}
	queue := make(pendingQueue, 0, len(pending))
	for key, p := range pending {
		queue = append(queue, pendingItem{
			key, p.timestamp,
		})
	}
	sort.Sort(queue)
	return queue[:num]
}

// pendingTable tracks in-flight outbound calls by call id. An entry is
// removed by exactly one of two paths: a matching response arriving, or the
// call's own timeout elapsing.
type pendingTable struct {
	// Limit is the number of entries to hold before oldest entries get
	// discarded. Zero means unbounded.
	Limit int
	// Discard is the number of oldest entries that get discarded when Limit
	// is reached.
	Discard int

	mu    sync.Mutex
	calls map[string]pendingCall
}

// Add records a pending entry and returns the channel its response will be
// delivered on.
func (t *pendingTable) Add(id, method string) chan *Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.calls == nil {
		t.calls = map[string]pendingCall{}
	}
	if t.Limit > 0 && len(t.calls) >= t.Limit && t.Discard > 0 {
		// Clear oldest entries
		for _, item := range pendingOldest(t.calls, t.Discard) {
			delete(t.calls, item.key)
		}
	}
	call := pendingCall{
		msgChan:   make(chan *Message, 1),
		method:    method,
		timestamp: time.Now(),
	}
	t.calls[id] = call
	return call.msgChan
}

// Remove discards the entry for id if it is still present, reporting whether
// it was. Safe to call for an id that was already removed.
func (t *pendingTable) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	return ok
}

// Deliver resolves the pending entry matching the response's call id. A
// response with no matching entry is reported but otherwise has no effect.
func (t *pendingTable) Deliver(msg *Message) bool {
	t.mu.Lock()
	call, ok := t.calls[msg.ID]
	if ok {
		delete(t.calls, msg.ID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	call.msgChan <- msg
	return true
}

// Flush abandons every pending entry without resolving it. Callers stuck on
// an abandoned call only fail via their own timeout.
func (t *pendingTable) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = map[string]pendingCall{}
}

// Len returns the number of in-flight calls.
func (t *pendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
