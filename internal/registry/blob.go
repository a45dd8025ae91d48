package registry

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/webdesserts/obsidian-memory-sub000/internal/clock"
	"github.com/webdesserts/obsidian-memory-sub000/internal/vaulterrors"
)

// blobState is the gob-encoded shape of `.sync/registry.crdt`; blobEntry
// is entry's exported-field counterpart, since gob cannot encode entry's
// unexported fields.
type blobState struct {
	Version clock.VersionVector
	Entries map[string]blobEntry
}

type blobEntry struct {
	DocID   string
	Alive   bool
	Lamport int64
	PeerID  string
}

// EncodeBlob serializes the full registry state for `.sync/registry.crdt`.
func (r *Registry) EncodeBlob() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := blobState{Version: r.version, Entries: make(map[string]blobEntry, len(r.byPath))}
	for path, e := range r.byPath {
		state.Entries[path] = blobEntry{DocID: e.docID, Alive: e.alive, Lamport: e.lamport, PeerID: e.peerID}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("encode registry blob: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBlob rebuilds a Registry owned by peerID from a previously
// persisted blob.
func DecodeBlob(peerID string, data []byte) (*Registry, error) {
	var state blobState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return nil, fmt.Errorf("%w: %w", vaulterrors.CorruptBlob, err)
	}

	r := New(peerID)
	r.version = state.Version
	for path, be := range state.Entries {
		r.byPath[path] = &entry{docID: be.DocID, alive: be.Alive, lamport: be.Lamport, peerID: be.PeerID}
		r.clock.Observe(be.Lamport)
		if be.Alive {
			r.byDocID[be.DocID] = path
		}
	}
	return r, nil
}
