package transport

import (
	"context"
	"fmt"

	"github.com/coder/websocket"

	"github.com/webdesserts/obsidian-memory-sub000/internal/vaulterrors"
)

// WebSocketTransport adapts an already-open coder/websocket connection
// to the Transport capability interface, framing every protocol message
// as one binary websocket message.
type WebSocketTransport struct {
	conn   *websocket.Conn
	closed bool
}

// NewWebSocketTransport wraps conn, an already-dialed-or-accepted
// websocket connection.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

// Send writes data as one binary websocket message.
func (t *WebSocketTransport) Send(ctx context.Context, data []byte) error {
	if t.closed {
		return vaulterrors.TransportClosed
	}
	if err := t.conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		return fmt.Errorf("%w: %w", vaulterrors.TransportClosed, err)
	}
	return nil
}

// Receive reads the next binary websocket message.
func (t *WebSocketTransport) Receive(ctx context.Context) ([]byte, error) {
	if t.closed {
		return nil, vaulterrors.TransportClosed
	}
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vaulterrors.TransportClosed, err)
	}
	return data, nil
}

// Close closes the underlying connection with a normal closure code.
func (t *WebSocketTransport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close(websocket.StatusNormalClosure, "vault sync session ended")
}
