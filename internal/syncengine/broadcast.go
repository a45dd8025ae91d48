package syncengine

import (
	"bytes"
	"context"
	"time"

	"github.com/webdesserts/obsidian-memory-sub000/internal/membership"
	"github.com/webdesserts/obsidian-memory-sub000/internal/protocol"
)

func bytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

// sendEnvelope wraps an already-framed payload message in a
// SyncEnvelope, piggybacking any gossip Membership has queued, and
// sends it on cs's connection (spec.md §4.E, "Piggyback").
// broadcastToConnected calls it once per handshake-complete connection.
func (e *Engine) sendEnvelope(ctx context.Context, cs *connState, payload []byte) error {
	env := protocol.SyncEnvelope{Payload: payload, Gossip: toWireGossip(e.members.DrainPending())}
	frame, err := protocol.EncodeMessage(protocol.KindSyncEnvelope, env)
	if err != nil {
		return err
	}
	return e.send(ctx, cs, frame)
}

func (e *Engine) sendGossip(ctx context.Context, cs *connState, updates []membership.Update) error {
	frame, err := protocol.EncodeMessage(protocol.KindGossip, protocol.Gossip{Updates: toWireGossip(updates)})
	if err != nil {
		return err
	}
	return e.send(ctx, cs, frame)
}

func toWireGossip(updates []membership.Update) []protocol.GossipUpdate {
	out := make([]protocol.GossipUpdate, 0, len(updates))
	for _, u := range updates {
		out = append(out, protocol.GossipUpdate{
			PeerID:      u.PeerID,
			Address:     u.Address,
			Incarnation: u.Incarnation,
			State:       u.State.String(),
		})
	}
	return out
}

func (e *Engine) send(ctx context.Context, cs *connState, frame []byte) error {
	if err := cs.transport.Send(ctx, frame); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.OperationsSent.Inc()
		e.metrics.BytesTransferred.Add(float64(len(frame)))
	}
	return nil
}

// broadcastToConnected sends an already-framed payload to every
// handshake-complete connection.
func (e *Engine) broadcastToConnected(ctx context.Context, payload []byte) {
	for _, cs := range e.conns {
		if !cs.handshakeDone {
			continue
		}
		if err := e.sendEnvelope(ctx, cs, payload); err != nil {
			e.logDrop("failed to broadcast to peer", err)
		}
	}
}

// BroadcastLocalChange sends path's pending DocumentUpdate to every
// connected peer, rate-limited to one send per second per path
// (spec.md §4.H, §5, testable property 7). If the window hasn't
// reopened yet, the send is deferred to a per-path flush timer that
// coalesces onto the latest pending change rather than being dropped.
func (e *Engine) BroadcastLocalChange(ctx context.Context, path string) {
	if last, ok := e.lastBroadcast[path]; ok {
		if remaining := broadcastWindow - time.Since(last); remaining > 0 {
			e.scheduleFlush(ctx, path, remaining)
			return
		}
	}
	e.flushBroadcast(ctx, path)
}

func (e *Engine) scheduleFlush(ctx context.Context, path string, delay time.Duration) {
	if t, ok := e.pendingTimer[path]; ok {
		t.Stop()
	}
	e.pendingTimer[path] = time.AfterFunc(delay, func() {
		e.enqueue(func() { e.flushBroadcast(ctx, path) })
	})
}

func (e *Engine) flushBroadcast(ctx context.Context, path string) {
	delete(e.pendingTimer, path)
	frame, err := e.vault.PrepareDocumentUpdate(ctx, path)
	if err != nil {
		e.logDrop("failed to prepare document update", err)
		return
	}
	if frame == nil {
		return
	}
	e.lastBroadcast[path] = time.Now()
	e.broadcastToConnected(ctx, frame)
}

// BroadcastFileOp sends an already-prepared FileOp frame (from
// Vault.PrepareFileDeleted/PrepareFileRenamed) to every connected peer
// immediately. FileOps are never throttled — only DocumentUpdate is
// (spec.md §4.H).
func (e *Engine) BroadcastFileOp(ctx context.Context, frame []byte) {
	e.broadcastToConnected(ctx, frame)
}

// Shutdown stops every pending flush timer, best-effort, without
// flushing them — the queue they'd submit into is draining too
// (spec.md §5, "Shutdown drains the queue best-effort").
func (e *Engine) Shutdown() {
	for path, t := range e.pendingTimer {
		t.Stop()
		delete(e.pendingTimer, path)
	}
}
