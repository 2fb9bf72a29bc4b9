package peerrpc

import (
	"encoding/json"
	"fmt"
)

// MsgType tags the kind of a wire message.
type MsgType string

const (
	// TypeCall is an outbound method invocation.
	TypeCall MsgType = "rpc_call"
	// TypeResponse carries the result or failure of a call.
	TypeResponse MsgType = "rpc_response"
	// TypeConnect is reserved; the handshake path does not emit it.
	TypeConnect MsgType = "rpc_connect"
	// TypeConnectAck is the handshake announcement, sent by both sides.
	TypeConnectAck MsgType = "rpc_connect_ack"
	// TypeConnectError is a diagnostic-only handshake failure notice.
	TypeConnectError MsgType = "rpc_connect_error"
	// TypeKeepAlive is the periodic advisory heartbeat.
	TypeKeepAlive MsgType = "rpc_keep_alive"
)

// Message is the wire unit, a tagged union over the six message kinds. Every
// kind except the keep-alive and the reserved connect carries the session id;
// call and response additionally carry the call id.
type Message struct {
	Type      MsgType         `json:"type"`
	ID        string          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`

	// ExposedFunctions lists the sender's callable method names, only
	// meaningful on a connect ack.
	ExposedFunctions []string `json:"exposedFunctions,omitempty"`
}

func (msg *Message) String() string {
	out, err := json.Marshal(msg)
	if err != nil {
		return fmt.Sprintf("failed to marshal message: %s", err)
	}
	return string(out)
}
