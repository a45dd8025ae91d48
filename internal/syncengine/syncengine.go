// Package syncengine implements the Sync Engine (spec.md §4.H): the
// component that drives the Peer Registry, Membership, Path Registry,
// and Document Store through the end-to-end handshake/sync/gossip
// message flow over a Transport.
package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/webdesserts/obsidian-memory-sub000/internal/logging"
	"github.com/webdesserts/obsidian-memory-sub000/internal/membership"
	"github.com/webdesserts/obsidian-memory-sub000/internal/metrics"
	"github.com/webdesserts/obsidian-memory-sub000/internal/peers"
	"github.com/webdesserts/obsidian-memory-sub000/internal/protocol"
	"github.com/webdesserts/obsidian-memory-sub000/internal/transport"
	"github.com/webdesserts/obsidian-memory-sub000/internal/vault"
	"github.com/webdesserts/obsidian-memory-sub000/internal/vaulterrors"
)

// broadcastWindow is the minimum spacing between two outbound
// DocumentUpdate messages for the same path (spec.md §5).
const broadcastWindow = time.Second

// Dialer schedules a one-shot outbound connection attempt to address,
// the auto-connect half of spec.md §4.G. The Sync Engine never dials
// directly; it only decides when a dial is warranted and deduplicates
// in-flight attempts for the same peer ID.
type Dialer func(peerID, address string)

// ModifiedNotifier is called with the set of vault-relative paths whose
// on-disk bytes the Sync Engine just rewrote, so the host can
// invalidate its file cache (spec.md §2, "host is notified of paths
// that sync has changed").
type ModifiedNotifier func(paths []string)

// connState is the per-connection bookkeeping the engine needs beyond
// what the Peer Registry tracks: the live Transport handle and whether
// this connection's handshake has completed (spec.md §4.H ordering
// guarantee: non-handshake messages before handshake completion are
// dropped silently).
type connState struct {
	handle        peers.Handle
	transport     transport.Transport
	peerID        string
	handshakeDone bool
}

// Engine is the Sync Engine: stateless with respect to CRDT data (all
// of that lives in the Vault) but owns connection bookkeeping, the
// broadcast throttle, and gossip-driven auto-dial suppression.
type Engine struct {
	localPeerID string
	vault       *vault.Vault
	peerReg     *peers.Registry
	members     *membership.Membership
	logger      *logging.Logger
	metrics     *metrics.Metrics
	dial        Dialer
	onModified  ModifiedNotifier
	enqueue     func(func())

	conns map[peers.Handle]*connState

	lastBroadcast map[string]time.Time
	pendingTimer  map[string]*time.Timer
	inFlightDials map[string]bool
}

// Options configures a new Engine.
type Options struct {
	LocalPeerID string
	Vault       *vault.Vault
	Peers       *peers.Registry
	Membership  *membership.Membership
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
	Dial        Dialer
	OnModified  ModifiedNotifier

	// Enqueue routes a closure back onto the single-actor queue that
	// owns this Engine (the Host Adapter's FIFO queue, §5). It is the
	// resolution of spec.md §9's throttle-refire Open Question: a
	// per-path time.AfterFunc schedules the delayed flush, but the
	// flush itself must still run serialized with every other Vault
	// mutation, so the timer callback only ever submits a closure here
	// rather than touching engine state directly. Nil means "run
	// synchronously", which is correct for single-goroutine tests.
	Enqueue func(func())
}

// New constructs an Engine from Options. Dial and OnModified may be nil
// (no-ops), which is convenient for tests that don't exercise discovery
// or host notification.
func New(opts Options) *Engine {
	e := &Engine{
		localPeerID:   opts.LocalPeerID,
		vault:         opts.Vault,
		peerReg:       opts.Peers,
		members:       opts.Membership,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		dial:          opts.Dial,
		onModified:    opts.OnModified,
		enqueue:       opts.Enqueue,
		conns:         make(map[peers.Handle]*connState),
		lastBroadcast: make(map[string]time.Time),
		pendingTimer:  make(map[string]*time.Timer),
		inFlightDials: make(map[string]bool),
	}
	if e.dial == nil {
		e.dial = func(string, string) {}
	}
	if e.onModified == nil {
		e.onModified = func([]string) {}
	}
	if e.enqueue == nil {
		e.enqueue = func(fn func()) { fn() }
	}
	return e
}

// SetEnqueue wires the closure-dispatch function used by per-path flush
// timers after construction, for callers (like pkg/vaultsync) that must
// build the Engine before its owning actor queue exists.
func (e *Engine) SetEnqueue(fn func(func())) {
	if fn != nil {
		e.enqueue = fn
	}
}

// ConnectionOpened registers a newly accepted or dialed connection and
// sends the local handshake, the always-first message on every
// connection (spec.md §4.E).
func (e *Engine) ConnectionOpened(ctx context.Context, connectionID, address string, direction peers.Direction, t transport.Transport) (peers.Handle, error) {
	handle := e.peerReg.PeerConnecting(connectionID, address, direction)
	e.conns[handle] = &connState{handle: handle, transport: t}

	hs := protocol.Handshake{PeerID: e.localPeerID, ProtocolVersion: 1}
	frame, err := protocol.EncodeMessage(protocol.KindHandshake, hs)
	if err != nil {
		return handle, err
	}
	if err := t.Send(ctx, frame); err != nil {
		return handle, err
	}
	return handle, nil
}

// ConnectionClosed marks handle's peer disconnected in the Peer
// Registry and, absent an active Prober, tells Membership to mark that
// peer dead — TransportClosed is the only liveness signal this
// implementation consumes (spec.md §4.G, §9).
func (e *Engine) ConnectionClosed(handle peers.Handle, reason string) {
	cs, ok := e.conns[handle]
	if !ok {
		return
	}
	peerID := cs.peerID
	e.peerReg.PeerDisconnectedByHandle(handle, reason)
	if peerID != "" {
		e.members.MarkDead(peerID)
	}
	delete(e.conns, handle)
	if e.metrics != nil {
		e.metrics.ActiveConnections.Set(float64(len(e.peerReg.GetConnectedPeers())))
	}
}

// HandleInbound dispatches one raw frame received on handle's
// connection. Every non-handshake message arriving before this
// connection's own handshake has completed is dropped silently
// (spec.md §4.H, "Handshake-gating").
func (e *Engine) HandleInbound(ctx context.Context, handle peers.Handle, raw []byte) error {
	cs, ok := e.conns[handle]
	if !ok {
		return fmt.Errorf("syncengine: unknown connection handle %s", handle)
	}

	kind, body, err := protocol.ReadMessage(bytesReader(raw))
	if err != nil {
		if cs.handshakeDone {
			e.logDrop("decode failure on framed message", err)
			return nil
		}
		return fmt.Errorf("%w: %w", vaulterrors.DecodeFailure, err)
	}

	if !cs.handshakeDone {
		if kind != protocol.KindHandshake {
			e.logDrop("non-handshake message before handshake complete", nil)
			return nil
		}
		return e.handleHandshake(ctx, cs, body)
	}

	if e.metrics != nil {
		e.metrics.OperationsReceived.Inc()
		e.metrics.BytesTransferred.Add(float64(len(raw)))
	}

	switch kind {
	case protocol.KindHandshake:
		// A counter-handshake on an already-handshaked connection is
		// harmless; spec.md only requires the *first* message be a
		// handshake. Ignore.
		return nil
	case protocol.KindSyncEnvelope:
		return e.handleEnvelope(ctx, cs, body)
	default:
		return e.dispatchPayload(ctx, cs, kind, body)
	}
}

func (e *Engine) handleHandshake(ctx context.Context, cs *connState, body []byte) error {
	hs, err := protocol.DecodeHandshake(body)
	if err != nil {
		// A malformed handshake is the one failure that closes the
		// connection outright (spec.md §7).
		return fmt.Errorf("%w: %w", vaulterrors.DecodeFailure, err)
	}
	cs.peerID = hs.PeerID
	cs.handshakeDone = true
	e.peerReg.PeerHandshakeComplete(cs.handle, hs.PeerID)
	if e.metrics != nil {
		e.metrics.ActiveConnections.Set(float64(len(e.peerReg.GetConnectedPeers())))
		e.metrics.KnownPeers.Set(float64(len(e.peerReg.GetKnownPeers())))
	}

	// Membership receives a full snapshot of known-alive peers on
	// handshake completion (spec.md §4.G).
	snapshot := e.members.KnownAlive()
	if len(snapshot) > 0 {
		if err := e.sendGossip(ctx, cs, snapshot); err != nil {
			return err
		}
	}

	req, err := e.vault.PrepareSyncRequest(ctx)
	if err != nil {
		return err
	}
	return e.sendEnvelope(ctx, cs, req)
}

// dispatchPayload handles a non-envelope, non-handshake message kind.
func (e *Engine) dispatchPayload(ctx context.Context, cs *connState, kind protocol.Kind, body []byte) error {
	switch kind {
	case protocol.KindSyncRequest:
		return e.handleSyncRequest(ctx, cs, body)
	case protocol.KindSyncResponse:
		return e.handleSyncResponse(ctx, body)
	case protocol.KindDocumentUpdate:
		return e.handleDocumentUpdate(ctx, body)
	case protocol.KindFileOp:
		return e.handleFileOp(ctx, body)
	case protocol.KindGossip:
		return e.handleGossip(ctx, body)
	default:
		e.logDrop("unrecognized message kind", nil)
		return nil
	}
}

func (e *Engine) handleEnvelope(ctx context.Context, cs *connState, body []byte) error {
	env, err := protocol.DecodeSyncEnvelope(body)
	if err != nil {
		e.logDrop("corrupt sync envelope", err)
		return nil
	}
	for _, g := range env.Gossip {
		e.applyGossip(g)
	}
	if len(env.Payload) == 0 {
		return nil
	}
	kind, innerBody, err := protocol.ReadMessage(bytesReader(env.Payload))
	if err != nil {
		e.logDrop("corrupt envelope payload", err)
		return nil
	}
	return e.dispatchPayload(ctx, cs, kind, innerBody)
}

func (e *Engine) handleSyncRequest(ctx context.Context, cs *connState, body []byte) error {
	resp, err := e.vault.ProcessSyncRequest(ctx, body)
	if err != nil {
		e.logDrop("failed to process sync request", err)
		return nil
	}
	return e.sendEnvelope(ctx, cs, resp)
}

func (e *Engine) handleSyncResponse(ctx context.Context, body []byte) error {
	modified, err := e.vault.ProcessSyncResponse(ctx, body)
	if err != nil {
		e.logDrop("failed to process sync response", err)
		return nil
	}
	for _, path := range modified {
		if err := e.vault.ReloadedFromDisk(ctx, path); err != nil {
			e.logDrop("failed to capture reloaded version", err)
		}
	}
	if len(modified) > 0 {
		e.onModified(modified)
	}
	return nil
}

func (e *Engine) handleDocumentUpdate(ctx context.Context, body []byte) error {
	update, err := protocol.DecodeDocumentUpdate(body)
	if err != nil {
		e.logDrop("corrupt document update", err)
		return nil
	}
	path, err := e.vault.ApplyDocumentUpdate(ctx, update.Delta)
	if err != nil {
		e.logDrop("failed to apply document update", err)
		return nil
	}
	if path == "" {
		return nil
	}
	if err := e.vault.ReloadedFromDisk(ctx, path); err != nil {
		e.logDrop("failed to capture reloaded version", err)
	}
	e.onModified([]string{path})
	return nil
}

func (e *Engine) handleFileOp(ctx context.Context, body []byte) error {
	op, err := protocol.DecodeFileOp(body)
	if err != nil {
		e.logDrop("corrupt file op", err)
		return nil
	}
	modified, err := e.vault.ApplyRemoteFileOp(ctx, op.Op)
	if err != nil {
		e.logDrop("failed to apply remote file op", err)
		return nil
	}
	if len(modified) > 0 {
		e.onModified(modified)
	}
	return nil
}

func (e *Engine) handleGossip(ctx context.Context, body []byte) error {
	g, err := protocol.DecodeGossip(body)
	if err != nil {
		e.logDrop("corrupt gossip", err)
		return nil
	}
	for _, u := range g.Updates {
		e.applyGossip(u)
	}
	return nil
}

// applyGossip feeds one inbound GossipUpdate to Membership and, per
// spec.md §4.G's auto-connect rule, schedules a one-shot dial if it
// revealed an alive peer with an address that was not already believed
// alive and is not connected.
func (e *Engine) applyGossip(g protocol.GossipUpdate) {
	state := membership.Alive
	switch g.State {
	case "suspect":
		state = membership.Suspect
	case "dead":
		state = membership.Dead
	}
	before, knownBefore := e.members.Tuple(g.PeerID)
	wasAlive := knownBefore && before.State == membership.Alive

	e.members.ApplyGossip(membership.Update{
		PeerID:      g.PeerID,
		Address:     g.Address,
		State:       state,
		Incarnation: g.Incarnation,
	})

	if state != membership.Alive || g.Address == "" || g.PeerID == e.localPeerID {
		return
	}
	if e.peerReg.IsConnected(g.PeerID) {
		return
	}
	if wasAlive {
		return
	}
	if e.inFlightDials[g.PeerID] {
		return
	}
	e.inFlightDials[g.PeerID] = true
	e.dial(g.PeerID, g.Address)
}

// DialSucceeded/DialFailed clear the in-flight-dial suppression set once
// a scheduled auto-connect dial resolves, so a genuinely new gossip
// wave (not a duplicate of one already acted on) can try again later.
func (e *Engine) DialSucceeded(peerID string) { delete(e.inFlightDials, peerID) }
func (e *Engine) DialFailed(peerID string)    { delete(e.inFlightDials, peerID) }

func (e *Engine) logDrop(msg string, err error) {
	if e.logger == nil {
		return
	}
	l := e.logger.Logger
	if err != nil {
		l = e.logger.WithError(err)
	}
	l.Warn(msg)
	if e.metrics != nil {
		e.metrics.DroppedMessages.Inc()
	}
}
