// Package membership implements the SWIM-flavored gossip membership
// component: per-peer alive/suspect/dead state with incarnation-based
// refutation, driven entirely by inbound gossip and transport-close
// events (no active probing).
package membership

import "sync"

// State is a membership tuple's liveness state.
type State int

const (
	Alive State = iota
	Suspect
	Dead
)

func (s State) String() string {
	switch s {
	case Alive:
		return "alive"
	case Suspect:
		return "suspect"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Update is an inbound gossip claim about one peer.
type Update struct {
	PeerID      string
	Address     string
	State       State
	Incarnation uint64
}

// tuple is the local membership record for one peer.
type tuple struct {
	address     string
	state       State
	incarnation uint64
}

// Prober is an optional liveness-probing extension point. Membership
// itself never calls it; a host that wants active SWIM-style probing
// wires it in and calls MarkDead based on its results.
type Prober interface {
	Probe(peerID string) error
}

// Membership owns one tuple per known peer plus the local peer's own
// always-alive, self-incarnating tuple.
type Membership struct {
	mu      sync.Mutex
	selfID  string
	tuples  map[string]*tuple
	pending []Update // gossip awaiting the next outbound piggyback
}

// New returns a Membership whose local peer is selfID, starting alive
// at incarnation 0.
func New(selfID string) *Membership {
	m := &Membership{
		selfID: selfID,
		tuples: make(map[string]*tuple),
	}
	m.tuples[selfID] = &tuple{state: Alive, incarnation: 0}
	return m
}

// ApplyGossip processes one inbound GossipUpdate against the local
// tuple for g.PeerID, following spec.md's update-rule table exactly.
// When the update concerns self and a suspect/dead claim matches or
// exceeds the local incarnation, self bumps its incarnation and queues
// a refuting alive update for the next outbound envelope.
func (m *Membership) ApplyGossip(g Update) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.tuples[g.PeerID]
	if !ok {
		l = &tuple{}
		m.tuples[g.PeerID] = l
	}

	switch {
	case g.State == Alive && g.Incarnation > l.incarnation:
		l.address, l.state, l.incarnation = g.Address, Alive, g.Incarnation
	case g.State == Alive && g.Incarnation == l.incarnation:
		if l.state != Alive {
			l.state = Alive
		}
	case g.State == Alive && g.Incarnation < l.incarnation:
		// discard: stale

	case g.State == Suspect && g.Incarnation > l.incarnation:
		l.state, l.incarnation = Suspect, g.Incarnation
	case g.State == Suspect && g.Incarnation == l.incarnation:
		if g.PeerID == m.selfID {
			m.refuteLocked(l)
		} else if l.state == Alive {
			l.state = Suspect
		}
	case g.State == Suspect && g.Incarnation < l.incarnation:
		// discard: stale

	case g.State == Dead && g.Incarnation >= l.incarnation:
		if g.PeerID == m.selfID {
			m.refuteLocked(l)
		} else {
			l.state = Dead
		}
	case g.State == Dead && g.Incarnation < l.incarnation:
		// discard: stale
	}
}

// refuteLocked bumps self's incarnation and queues the refuting alive
// update, replacing any earlier self update still queued so the pending
// set stays bounded. Caller holds the lock.
func (m *Membership) refuteLocked(self *tuple) {
	self.state = Alive
	self.incarnation++
	kept := m.pending[:0]
	for _, u := range m.pending {
		if u.PeerID != m.selfID {
			kept = append(kept, u)
		}
	}
	m.pending = append(kept, Update{
		PeerID:      m.selfID,
		State:       Alive,
		Incarnation: self.incarnation,
	})
}

// MarkDead records a peer as dead locally (e.g. on transport close),
// the only liveness signal this implementation consumes absent an
// active Prober.
func (m *Membership) MarkDead(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if peerID == m.selfID {
		return
	}
	t, ok := m.tuples[peerID]
	if !ok {
		t = &tuple{}
		m.tuples[peerID] = t
	}
	t.state = Dead
}

// Tuple returns a snapshot of peerID's current membership state.
func (m *Membership) Tuple(peerID string) (Update, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tuples[peerID]
	if !ok {
		return Update{}, false
	}
	return Update{PeerID: peerID, Address: t.address, State: t.state, Incarnation: t.incarnation}, true
}

// DrainPending returns and clears every gossip update queued for the
// next outbound envelope (self-refutations, mainly).
func (m *Membership) DrainPending() []Update {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	m.pending = nil
	return out
}

// KnownAlive returns the peer ID and address of every peer currently
// believed alive, excluding self.
func (m *Membership) KnownAlive() []Update {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Update
	for peerID, t := range m.tuples {
		if peerID == m.selfID {
			continue
		}
		if t.state == Alive {
			out = append(out, Update{PeerID: peerID, Address: t.address, State: Alive, Incarnation: t.incarnation})
		}
	}
	return out
}
