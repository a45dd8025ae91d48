// Package document implements the Document Store: per-path CRDT state
// (an RGA text sequence plus an LWW frontmatter map) and its on-disk
// blob encoding.
package document

import (
	"sync"

	"github.com/webdesserts/obsidian-memory-sub000/internal/clock"
)

// TextID identifies one character in the sequence: the Lamport
// timestamp of the insert that created it, plus the authoring peer,
// giving every replica the same total order on concurrent siblings.
type TextID struct {
	Lamport int64
	PeerID  string
}

// Greater gives TextID the total order RGA integration needs: higher
// Lamport timestamp first, peer ID breaks ties.
func (a TextID) Greater(b TextID) bool {
	if a.Lamport != b.Lamport {
		return a.Lamport > b.Lamport
	}
	return a.PeerID > b.PeerID
}

var rootID = TextID{Lamport: 0, PeerID: ""}

// TextNode is one character of the replicated sequence, tombstoned
// rather than removed so concurrent operations referencing it still
// resolve after a delete.
type TextNode struct {
	ID       TextID
	ParentID TextID
	Value    rune
	Deleted  bool
	next     *TextNode
}

// TextOp is an emitted mutation: an Insert carries a Value, a Delete
// does not.
type TextOp struct {
	Kind     TextOpKind
	ID       TextID
	ParentID TextID
	Value    rune
}

// TextOpKind distinguishes TextOp variants.
type TextOpKind int

const (
	TextInsert TextOpKind = iota
	TextDelete
)

// Text is a Replicated Growable Array over runes, the Document Store's
// container for a note's body text.
type Text struct {
	mu             sync.RWMutex
	peerID         string
	clock          clock.Lamport
	registry       map[TextID]*TextNode
	root           *TextNode
	pendingOrphans map[TextID][]TextNode
}

// NewText returns an empty Text sequence authored by peerID.
func NewText(peerID string) *Text {
	root := &TextNode{ID: rootID}
	return &Text{
		peerID:         peerID,
		registry:       map[TextID]*TextNode{rootID: root},
		root:           root,
		pendingOrphans: make(map[TextID][]TextNode),
	}
}

// Insert creates a new character after parentID, authored locally, and
// returns the op to broadcast.
func (t *Text) Insert(val rune, parentID TextID) TextOp {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := TextID{Lamport: t.clock.Tick(), PeerID: t.peerID}
	node := &TextNode{ID: id, ParentID: parentID, Value: val}
	t.integrate(node)
	return TextOp{Kind: TextInsert, ID: id, ParentID: parentID, Value: val}
}

// Delete tombstones id locally and returns the op to broadcast. Deleting
// an ID this replica doesn't hold leaves local state unchanged (nothing
// is buffered locally); the returned op still carries the delete.
func (t *Text) Delete(id TextID) TextOp {
	t.mu.Lock()
	defer t.mu.Unlock()
	if node, ok := t.registry[id]; ok {
		node.Deleted = true
	}
	return TextOp{Kind: TextDelete, ID: id}
}

// Apply integrates a single remote op (insert or delete), buffering
// inserts whose parent hasn't arrived yet.
func (t *Text) Apply(op TextOp) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch op.Kind {
	case TextDelete:
		if node, ok := t.registry[op.ID]; ok {
			node.Deleted = true
		} else {
			t.pendingOrphans[op.ID] = append(t.pendingOrphans[op.ID], TextNode{ID: op.ID, Deleted: true})
		}
	case TextInsert:
		t.processNode(TextNode{ID: op.ID, ParentID: op.ParentID, Value: op.Value})
	}
	t.clock.Observe(op.ID.Lamport)
}

// processNode integrates n if its parent is known, otherwise buffers it
// as an orphan to retry once the parent arrives. Caller holds the lock.
func (t *Text) processNode(n TextNode) {
	if _, ok := t.registry[n.ParentID]; ok {
		node := &TextNode{ID: n.ID, ParentID: n.ParentID, Value: n.Value, Deleted: n.Deleted}
		t.integrate(node)
		if orphans, ok := t.pendingOrphans[n.ID]; ok {
			for _, child := range orphans {
				t.processNode(child)
			}
			delete(t.pendingOrphans, n.ID)
		}
		return
	}
	t.pendingOrphans[n.ParentID] = append(t.pendingOrphans[n.ParentID], n)
}

// integrate performs the deterministic pointer-linking: starting right
// after the parent, it skips every node whose TextID is greater than
// node's (higher-ordered siblings and their descendants, which always
// carry greater IDs), so every replica converges on the same
// linearization. Caller holds the lock.
func (t *Text) integrate(node *TextNode) {
	if existing, ok := t.registry[node.ID]; ok {
		if node.Deleted {
			existing.Deleted = true
		}
		return
	}

	parent := t.registry[node.ParentID]
	prev := parent
	curr := parent.next
	for curr != nil && curr.ID.Greater(node.ID) {
		prev = curr
		curr = curr.next
	}

	node.next = curr
	prev.next = node
	t.registry[node.ID] = node
}

// Value returns the materialized, tombstone-filtered string.
func (t *Text) Value() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var runes []rune
	for n := t.root.next; n != nil; n = n.next {
		if !n.Deleted {
			runes = append(runes, n.Value)
		}
	}
	return string(runes)
}

// Nodes returns every node (including tombstones, excluding the root
// sentinel) in registry order, for blob serialization. Order among
// entries is not significant; LoadNodes re-derives the linearization
// from ParentID/ID alone.
func (t *Text) Nodes() []TextNode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	nodes := make([]TextNode, 0, len(t.registry)-1)
	for id, n := range t.registry {
		if id == rootID {
			continue
		}
		nodes = append(nodes, TextNode{ID: n.ID, ParentID: n.ParentID, Value: n.Value, Deleted: n.Deleted})
	}
	return nodes
}

// LoadNodes rebuilds a Text from a previously serialized node set,
// applying causal/orphan handling and clock observation exactly as
// Apply does.
func LoadNodes(peerID string, nodes []TextNode) *Text {
	t := NewText(peerID)
	for _, n := range nodes {
		t.processNode(n)
		t.clock.Observe(n.ID.Lamport)
	}
	return t
}

// ApplyLocalChange diffs the current materialized value against newValue
// and emits the minimal run of Insert/Delete ops (authored under the
// local peer ID) that transforms one into the other, applying them to
// this Text and returning them for broadcast.
func (t *Text) ApplyLocalChange(newValue string) []TextOp {
	oldValue := t.Value()
	oldRunes := []rune(oldValue)
	newRunes := []rune(newValue)
	script := diffRunes(oldRunes, newRunes)
	oldIDs := t.visibleIDsInOrder()

	var ops []TextOp
	oldIdx := 0
	// parent tracks the visible ID immediately to the left of the
	// cursor, starting at the root sentinel.
	parent := rootID

	for _, e := range script {
		switch e.kind {
		case editKeep:
			parent = oldIDs[oldIdx]
			oldIdx++
		case editDelete:
			ops = append(ops, t.Delete(oldIDs[oldIdx]))
			oldIdx++
		case editInsert:
			op := t.Insert(e.r, parent)
			parent = op.ID
			ops = append(ops, op)
		}
	}
	return ops
}

// visibleIDsInOrder walks the linearization, returning the ID of every
// visible (non-tombstoned) character in document order. Used by the
// diff in ApplyLocalChange to name insert positions precisely.
func (t *Text) visibleIDsInOrder() []TextID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var ids []TextID
	for n := t.root.next; n != nil; n = n.next {
		if !n.Deleted {
			ids = append(ids, n.ID)
		}
	}
	return ids
}
