// Package peers implements the Peer Registry: the connection-lifecycle
// state machine for every peer this process has dialed or been dialed
// by.
package peers

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a connection's position in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Direction records which side initiated the connection.
type Direction int

const (
	Incoming Direction = iota
	Outgoing
)

func (d Direction) String() string {
	if d == Outgoing {
		return "outgoing"
	}
	return "incoming"
}

// Handle is an opaque per-connection identifier, stable for the
// lifetime of one dial/accept, independent of the peer ID (which isn't
// known until handshake completes).
type Handle string

// Entry is the read-only view of one peer-registry record, matching
// spec.md §3's peer-registry entry shape. It is returned by value so
// callers (UI snapshots, the Sync Engine) can't mutate the Registry's
// internal state through it.
type Entry struct {
	PeerID          string
	Address         string
	Direction       Direction
	State           State
	DisconnectReason string
	FirstSeen       time.Time
	LastSeen        time.Time
	ConnectionCount int
}

type entry struct {
	handle          Handle
	connectionID    string
	peerID          string // empty until handshake completes
	address         string
	direction       Direction
	state           State
	disconnectReason string
	firstSeen       time.Time
	lastSeen        time.Time
	connectionCount int
}

func (e *entry) snapshot() Entry {
	return Entry{
		PeerID:           e.peerID,
		Address:          e.address,
		Direction:        e.direction,
		State:            e.state,
		DisconnectReason: e.disconnectReason,
		FirstSeen:        e.firstSeen,
		LastSeen:         e.lastSeen,
		ConnectionCount:  e.connectionCount,
	}
}

// Registry is the Peer Registry: a single owning store keyed by Handle,
// with secondary indices by connection ID and by peer ID. The teacher's
// NetworkManager kept two independent maps (peers, connections) with no
// shared key, which meant every removal had to stay in lockstep by
// hand; indexing everything through one owning map avoids that.
type Registry struct {
	mu           sync.RWMutex
	byHandle     map[Handle]*entry
	byConnection map[string]Handle
	byPeerID     map[string]Handle
	now          func() time.Time
}

// New returns an empty Peer Registry.
func New() *Registry {
	return &Registry{
		byHandle:     make(map[Handle]*entry),
		byConnection: make(map[string]Handle),
		byPeerID:     make(map[string]Handle),
		now:          time.Now,
	}
}

// PeerConnecting registers a new in-flight connection (dialed or
// accepted, handshake not yet complete) and returns its handle.
func (r *Registry) PeerConnecting(connectionID, address string, direction Direction) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	handle := Handle(uuid.NewString())
	r.byHandle[handle] = &entry{
		handle:       handle,
		connectionID: connectionID,
		address:      address,
		direction:    direction,
		state:        StateConnecting,
		firstSeen:    now,
		lastSeen:     now,
	}
	r.byConnection[connectionID] = handle
	return handle
}

// PeerHandshakeComplete records the remote peer ID for handle and marks
// its connection connected. If a disconnected entry already exists for
// peerID (a reconnect), its history is merged in: connectionCount is
// incremented and firstSeen is carried forward, matching spec.md §4.F's
// "if an entry for peerId already exists, merges" contract.
func (r *Registry) PeerHandshakeComplete(handle Handle, peerID string) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byHandle[handle]
	if !ok {
		return Entry{}
	}
	now := r.now()
	e.peerID = peerID
	e.state = StateConnected
	e.lastSeen = now
	e.connectionCount++

	if priorHandle, ok := r.byPeerID[peerID]; ok && priorHandle != handle {
		if prior, ok := r.byHandle[priorHandle]; ok {
			e.firstSeen = prior.firstSeen
			e.connectionCount = prior.connectionCount + 1
			delete(r.byHandle, priorHandle)
		}
	}
	r.byPeerID[peerID] = handle
	return e.snapshot()
}

// PeerDisconnected marks a connection disconnected and removes it from
// the indices new dials should no longer find it through. id may be
// either a connection ID or a peer ID, matching spec.md §4.F.
func (r *Registry) PeerDisconnected(id, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, ok := r.byConnection[id]
	if !ok {
		handle, ok = r.byPeerID[id]
	}
	if !ok {
		return
	}
	r.disconnectLocked(handle, reason)
}

// PeerDisconnectedByHandle is PeerDisconnected keyed by the opaque
// Handle the Sync Engine already tracks per connection, for callers
// that never learned (or no longer have) the original connection ID.
func (r *Registry) PeerDisconnectedByHandle(handle Handle, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnectLocked(handle, reason)
}

func (r *Registry) disconnectLocked(handle Handle, reason string) {
	e, ok := r.byHandle[handle]
	if !ok {
		return
	}
	e.state = StateDisconnected
	e.disconnectReason = reason
	e.lastSeen = r.now()
	delete(r.byConnection, e.connectionID)
	// byPeerID intentionally retained: spec.md §3 says peer-registry
	// entries "may return to disconnected and be reused across
	// reconnects" — GetKnownPeers and the reconnect merge in
	// PeerHandshakeComplete both depend on finding this entry again.
}

// ResolvePeerID returns the peer ID associated with handle, if its
// handshake has completed. Per spec.md §4.F, before handshake completes
// the connection resolves to its own connection ID.
func (r *Registry) ResolvePeerID(handle Handle) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byHandle[handle]
	if !ok {
		return "", false
	}
	if e.peerID == "" {
		return e.connectionID, true
	}
	return e.peerID, true
}

// HandleForPeer returns the handle currently associated with peerID, if
// any: set once a handshake completes and kept after the peer
// disconnects.
func (r *Registry) HandleForPeer(peerID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byPeerID[peerID]
	return h, ok
}

// GetConnectedPeers returns a snapshot entry for every handle currently
// in the connected state.
func (r *Registry) GetConnectedPeers() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.byHandle {
		if e.state == StateConnected && e.peerID != "" {
			out = append(out, e.snapshot())
		}
	}
	return out
}

// GetKnownPeers returns a snapshot entry for every handle that has ever
// completed a handshake, connected or not.
func (r *Registry) GetKnownPeers() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.byHandle))
	for _, e := range r.byHandle {
		if e.peerID != "" {
			out = append(out, e.snapshot())
		}
	}
	return out
}

// IsConnected reports whether peerID currently has a connected handle.
func (r *Registry) IsConnected(peerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byPeerID[peerID]
	if !ok {
		return false
	}
	e := r.byHandle[h]
	return e != nil && e.state == StateConnected
}
