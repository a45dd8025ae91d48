// Package transport defines the duplex byte-message capability the
// Sync Engine's Host Adapter consumes, plus the one real implementation
// wrapping a coder/websocket connection. Opening, dialing, and
// reconnecting the socket is the host's job; this package only adapts
// an already-open connection to the capability interface.
package transport

import "context"

// Transport is a duplex, message-oriented connection to one peer.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}
