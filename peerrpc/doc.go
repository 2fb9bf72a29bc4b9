/*
	Package peerrpc implements a bidirectional RPC link between two isolated
	peer contexts that are connected only by an asynchronous, unordered,
	fire-and-forget message channel.

	Transport is the channel abstraction. Once a Transport is established, it
	does not care which side initiated the connection. There is no inherent
	asymmetry between the two peers.

	Peer is both a caller and a callee. Each side exposes a registry of named
	functions at construction, handshakes to agree on a shared session id and
	exchange exposed method names, and can then call the other side's
	functions as if they were local asynchronous functions.

	The channel is assumed to be lossy: there is no delivery guarantee and no
	ordering guarantee. The only recovery mechanism is the per-call timeout.
	While connected, a peer additionally emits advisory keep-alive frames and
	polls the transport for peer-context termination.
*/
package peerrpc
