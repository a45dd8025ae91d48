package hostadapter

import (
	"context"

	"github.com/webdesserts/obsidian-memory-sub000/internal/peers"
	"github.com/webdesserts/obsidian-memory-sub000/internal/transport"
)

// Attach wires an already-open Transport into the Sync Engine: the
// handshake send happens on the FIFO queue, then a dedicated read loop
// feeds every inbound frame back through the same queue (spec.md §4.I,
// "bridges outbound messages from the Sync Engine to the transport and
// inbound transport messages back to the Sync Engine").
func (a *Adapter) Attach(ctx context.Context, connectionID, address string, direction peers.Direction, t transport.Transport) error {
	var handle peers.Handle
	err := a.Enqueue(func() error {
		h, err := a.engine.ConnectionOpened(ctx, connectionID, address, direction, t)
		handle = h
		return err
	})
	if err != nil {
		return err
	}

	go a.readLoop(ctx, handle, t)
	return nil
}

// readLoop blocks on Transport.Receive outside the actor queue (it's
// the one legitimate place a goroutine waits on I/O that isn't itself
// a queued closure) and submits each frame, and eventual closure, back
// onto the queue so Engine state is only ever touched from the single
// actor goroutine.
func (a *Adapter) readLoop(ctx context.Context, handle peers.Handle, t transport.Transport) {
	for {
		raw, err := t.Receive(ctx)
		if err != nil {
			a.EnqueueAsync(func() { a.engine.ConnectionClosed(handle, err.Error()) })
			return
		}

		protocolErr := a.Enqueue(func() error {
			return a.engine.HandleInbound(ctx, handle, raw)
		})
		if protocolErr != nil {
			// HandleInbound returns an error for an unknown handle, an
			// unreadable or malformed handshake, or a failed send on
			// this connection; decode and apply failures after the
			// handshake are logged internally and the connection
			// stays open.
			if a.logger != nil {
				a.logger.WithError(protocolErr).Warn("closing connection after protocol error")
			}
			_ = t.Close()
			a.EnqueueAsync(func() { a.engine.ConnectionClosed(handle, "protocol error") })
			return
		}
	}
}
