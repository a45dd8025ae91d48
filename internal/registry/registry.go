// Package registry implements the Path Registry: the CRDT mapping from
// vault-relative paths to document identities, surviving renames and
// resolving concurrent path mutations deterministically.
package registry

import (
	"fmt"
	"sync"

	"github.com/webdesserts/obsidian-memory-sub000/internal/clock"
	"github.com/webdesserts/obsidian-memory-sub000/internal/vaulterrors"
)

// OpKind distinguishes the three mutations a Registry emits.
type OpKind int

const (
	OpCreate OpKind = iota
	OpRename
	OpDelete
)

// Op is an emitted or received registry mutation, wire- and
// blob-encodable via encoding/gob.
type Op struct {
	Kind    OpKind
	Path    string
	OldPath string // set only for OpRename
	DocID   string
	Lamport int64
	PeerID  string
}

type entry struct {
	docID   string
	alive   bool
	lamport int64
	peerID  string
}

// wins reports whether candidate should overwrite existing under the
// registry's tiebreak rule: higher Lamport wins, peer ID lexicographic
// order breaks ties. A nil existing entry always loses.
func wins(existing *entry, lamport int64, peerID string) bool {
	if existing == nil {
		return true
	}
	if lamport != existing.lamport {
		return lamport > existing.lamport
	}
	return peerID > existing.peerID
}

// Registry is the Path Registry: a flat path -> entry map plus a
// docID -> current-path index, so a rename preserves identity without
// the caller needing to track IDs itself.
type Registry struct {
	mu      sync.RWMutex
	peerID  string
	clock   clock.Lamport
	version clock.VersionVector

	byPath  map[string]*entry
	byDocID map[string]string

	changeCount uint32
	opCount     uint32
}

// New returns an empty Path Registry for peerID.
func New(peerID string) *Registry {
	return &Registry{
		peerID:  peerID,
		version: clock.NewVersionVector(),
		byPath:  make(map[string]*entry),
		byDocID: make(map[string]string),
	}
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path: %w", vaulterrors.InvalidPath)
	}
	for i := 0; i+1 < len(path); i++ {
		if path[i] == '.' && path[i+1] == '.' {
			if (i == 0 || path[i-1] == '/') && (i+2 == len(path) || path[i+2] == '/') {
				return fmt.Errorf("%q: %w", path, vaulterrors.InvalidPath)
			}
		}
	}
	return nil
}

// Create registers a new path -> docID mapping, authored locally.
func (r *Registry) Create(path, docID string) (Op, error) {
	if err := validatePath(path); err != nil {
		return Op{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	lamport := r.clock.Tick()
	r.byPath[path] = &entry{docID: docID, alive: true, lamport: lamport, peerID: r.peerID}
	r.byDocID[docID] = path
	r.bumpLocked(r.peerID)

	return Op{Kind: OpCreate, Path: path, DocID: docID, Lamport: lamport, PeerID: r.peerID}, nil
}

// Rename moves docID's current path to newPath, tombstoning oldPath
// while preserving the document's identity.
func (r *Registry) Rename(oldPath, newPath string) (Op, error) {
	if err := validatePath(oldPath); err != nil {
		return Op{}, err
	}
	if err := validatePath(newPath); err != nil {
		return Op{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byPath[oldPath]
	if !ok || !existing.alive {
		return Op{}, fmt.Errorf("%q: %w", oldPath, vaulterrors.InvalidPath)
	}
	docID := existing.docID
	lamport := r.clock.Tick()

	existing.alive = false
	existing.lamport = lamport
	existing.peerID = r.peerID
	r.byPath[newPath] = &entry{docID: docID, alive: true, lamport: lamport, peerID: r.peerID}
	r.byDocID[docID] = newPath
	r.bumpLocked(r.peerID)

	return Op{Kind: OpRename, Path: newPath, OldPath: oldPath, DocID: docID, Lamport: lamport, PeerID: r.peerID}, nil
}

// Delete tombstones path.
func (r *Registry) Delete(path string) (Op, error) {
	if err := validatePath(path); err != nil {
		return Op{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byPath[path]
	if !ok || !existing.alive {
		return Op{}, fmt.Errorf("%q: %w", path, vaulterrors.InvalidPath)
	}
	lamport := r.clock.Tick()
	docID := existing.docID
	existing.alive = false
	existing.lamport = lamport
	existing.peerID = r.peerID
	if r.byDocID[docID] == path {
		delete(r.byDocID, docID)
	}
	r.bumpLocked(r.peerID)

	return Op{Kind: OpDelete, Path: path, DocID: docID, Lamport: lamport, PeerID: r.peerID}, nil
}

// Lookup returns the docID currently alive at path, if any.
func (r *Registry) Lookup(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byPath[path]
	if !ok || !e.alive {
		return "", false
	}
	return e.docID, true
}

// AllPaths returns every currently alive path.
func (r *Registry) AllPaths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.byPath))
	for p, e := range r.byPath {
		if e.alive {
			paths = append(paths, p)
		}
	}
	return paths
}

// ApplyRemote merges a remote Op, resolving conflicts with the same
// Lamport-then-peer-ID tiebreak Create/Rename/Delete use locally: rename
// and delete beat a concurrent create/update on the same path whenever
// their Lamport timestamp is higher, and peer ID breaks exact ties.
//
// It reports whether op won its tiebreaks and was applied (applied; for
// OpCreate/OpRename op.Path is then alive, for OpDelete it is now a
// tombstone), and, for
// OpCreate/OpRename, the other currently-alive path for the same docID
// that was tombstoned as a side effect of op winning (invalidated), if
// any. A caller mirroring registry state onto real file bytes (e.g. the
// Vault) needs invalidated to know which on-disk copy actually holds
// the content that now belongs at op.Path: a concurrent rename of the
// same source to two different targets only tombstones paths in the
// registry here, it doesn't know anything about files.
func (r *Registry) ApplyRemote(op Op) (applied bool, invalidated string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock.Observe(op.Lamport)

	if op.Kind == OpRename {
		if old := r.byPath[op.OldPath]; wins(old, op.Lamport, op.PeerID) {
			r.byPath[op.OldPath] = &entry{docID: op.DocID, alive: false, lamport: op.Lamport, peerID: op.PeerID}
		}
	}

	target := r.byPath[op.Path]
	if !wins(target, op.Lamport, op.PeerID) {
		return false, ""
	}

	switch op.Kind {
	case OpCreate, OpRename:
		// A concurrent rename of the same docID to some other path may
		// already be alive here (e.g. two replicas each renamed their
		// copy of the same document to a different target). Only one
		// target may survive per docID: whichever of op and the other
		// path's authoring op loses the tiebreak gets tombstoned instead
		// of left alive alongside the winner.
		applied = true
		if other := r.byDocID[op.DocID]; other != "" && other != op.Path {
			if otherEntry := r.byPath[other]; otherEntry != nil && otherEntry.alive {
				if wins(otherEntry, op.Lamport, op.PeerID) {
					otherEntry.alive = false
					otherEntry.lamport = op.Lamport
					otherEntry.peerID = op.PeerID
					invalidated = other
				} else {
					applied = false
				}
			}
		}
		r.byPath[op.Path] = &entry{docID: op.DocID, alive: applied, lamport: op.Lamport, peerID: op.PeerID}
		if applied {
			r.byDocID[op.DocID] = op.Path
		}
	case OpDelete:
		applied = true
		r.byPath[op.Path] = &entry{docID: op.DocID, alive: false, lamport: op.Lamport, peerID: op.PeerID}
		if r.byDocID[op.DocID] == op.Path {
			delete(r.byDocID, op.DocID)
		}
	}
	r.bumpLocked(op.PeerID)
	return applied, invalidated
}

// bumpLocked advances the version vector's counter for authorPeerID and
// the registry's change/op counters. Caller holds the lock.
func (r *Registry) bumpLocked(authorPeerID string) {
	r.version = clock.Increment(r.version, authorPeerID)
	r.changeCount++
	r.opCount++
}

// EncodedVersion gob-encodes the registry's version vector, mirroring
// the Document Store's blob encoding for on-disk/wire consistency.
func (r *Registry) EncodedVersion() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clock.Encode(r.version)
}

// Version returns a copy of the registry's current version vector.
func (r *Registry) Version() clock.VersionVector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clock.Clone(r.version)
}

// Snapshot returns every path entry (alive or tombstoned) as a Create or
// Delete Op. Applying the full snapshot through ApplyRemote is
// idempotent regardless of how much of it the receiver already knows,
// so a sync response always ships the whole registry rather than a
// minimal since-version delta: the Path Registry has no per-op log to
// compute that delta from, and a personal vault's registry is small
// enough that shipping the full snapshot on every sync is cheap.
func (r *Registry) Snapshot() []Op {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]Op, 0, len(r.byPath))
	for path, e := range r.byPath {
		kind := OpCreate
		if !e.alive {
			kind = OpDelete
		}
		ops = append(ops, Op{Kind: kind, Path: path, DocID: e.docID, Lamport: e.lamport, PeerID: e.peerID})
	}
	return ops
}

// ChangeCount returns the number of Create/Rename/Delete calls applied
// locally or remotely so far.
func (r *Registry) ChangeCount() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.changeCount
}

// OpCount returns the number of registry operations observed so far.
func (r *Registry) OpCount() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opCount
}
