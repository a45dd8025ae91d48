package document

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/webdesserts/obsidian-memory-sub000/internal/clock"
	"github.com/webdesserts/obsidian-memory-sub000/internal/vaulterrors"
)

// maxFileSize is the single-document body ceiling spec.md's error
// handling design names as OversizedFile.
const maxFileSize = 10 * 1024 * 1024 // 10MiB

// Document is one note's full CRDT state: an RGA text body, an LWW
// frontmatter map, and the version vector summarizing every operation
// either container has absorbed.
type Document struct {
	docID       string
	peerID      string
	text        *Text
	frontmatter *Frontmatter
	version     clock.VersionVector

	startVersion clock.VersionVector
	changeCount  uint32
	opCount      uint32
	createdAt    int64
	modifiedAt   int64
}

func newDocument(peerID, docID string) *Document {
	d := &Document{
		docID:        docID,
		peerID:       peerID,
		text:         NewText(peerID),
		version:      clock.NewVersionVector(),
		startVersion: clock.NewVersionVector(),
	}
	var fmClock clock.Lamport
	d.frontmatter = NewFrontmatter(peerID, fmClock.Tick, fmClock.Observe)
	return d
}

// OpenOrCreate returns a new, empty Document for docID if existing is
// nil, or decodes existing as a previously persisted blob.
func OpenOrCreate(peerID, docID string, existing []byte) (*Document, error) {
	if existing == nil {
		return newDocument(peerID, docID), nil
	}
	return DecodeBlob(peerID, docID, existing)
}

// Delta is a self-contained, wire- and blob-encodable unit of change:
// either a local edit about to be broadcast, or a remote one being
// applied. EncodeDelta/ApplyRemoteDelta are the Document Store's only
// entry points for cross-peer state exchange.
type Delta struct {
	DocID       string
	TextOps     []TextOp
	Frontmatter map[string]frontmatterEntry
	Version     clock.VersionVector
}

// ApplyLocalChange diffs newContent (full raw file bytes, including any
// frontmatter fence) against the document's current materialized form,
// authors the minimal Insert/Delete/frontmatter ops under peerID, and
// returns the Delta to broadcast. OversizedFile rejects bodies over the
// 10MiB ceiling before any CRDT state is touched.
func (d *Document) ApplyLocalChange(newContent string) (Delta, error) {
	if len(newContent) > maxFileSize {
		return Delta{}, fmt.Errorf("%q: %w", d.docID, vaulterrors.OversizedFile)
	}

	rawFrontmatter, body := ParseFrontmatter(newContent)
	textOps := d.text.ApplyLocalChange(body)

	changedKeys := map[string]string{}
	for k, v := range rawFrontmatter {
		if existing, ok := d.frontmatter.Get(k); !ok || existing != v {
			changedKeys[k] = v
		}
	}
	for k, v := range changedKeys {
		d.frontmatter.Set(k, v)
	}

	var removedKeys []string
	for _, k := range d.frontmatter.Keys() {
		if _, ok := rawFrontmatter[k]; !ok {
			removedKeys = append(removedKeys, k)
		}
	}
	for _, k := range removedKeys {
		d.frontmatter.Delete(k)
	}

	if len(textOps) > 0 || len(changedKeys) > 0 || len(removedKeys) > 0 {
		d.version = clock.Increment(d.version, d.peerID)
		d.changeCount++
		d.opCount += uint32(len(textOps))
	}

	fm := map[string]frontmatterEntry{}
	for k := range changedKeys {
		if e, ok := d.frontmatter.byKey[k]; ok {
			fm[k] = e
		}
	}
	for _, k := range removedKeys {
		if e, ok := d.frontmatter.byKey[k]; ok {
			fm[k] = e
		}
	}

	return Delta{
		DocID:       d.docID,
		TextOps:     textOps,
		Frontmatter: fm,
		Version:     clock.Clone(d.version),
	}, nil
}

// FullDelta returns the document's complete current state as a
// self-contained Delta: applying it to a brand-new Document (via
// ApplyRemoteDelta) reconstructs this document's text and frontmatter
// exactly, tombstones included. Used when a sync peer doesn't hold any
// version of this document yet, so a since-version diff isn't possible.
func (d *Document) FullDelta() Delta {
	nodes := d.text.Nodes()
	ops := make([]TextOp, 0, len(nodes)*2)
	for _, n := range nodes {
		ops = append(ops, TextOp{Kind: TextInsert, ID: n.ID, ParentID: n.ParentID, Value: n.Value})
		if n.Deleted {
			ops = append(ops, TextOp{Kind: TextDelete, ID: n.ID})
		}
	}
	return Delta{
		DocID:       d.docID,
		TextOps:     ops,
		Frontmatter: d.frontmatter.Entries(),
		Version:     clock.Clone(d.version),
	}
}

// ApplyRemoteDelta merges a remote Delta into this document's CRDT
// state, any-causal-order safe: out-of-order or duplicate ops are
// idempotent under RGA/LWW merge semantics.
func (d *Document) ApplyRemoteDelta(delta Delta) {
	for _, op := range delta.TextOps {
		d.text.Apply(op)
	}
	for key, entry := range delta.Frontmatter {
		d.frontmatter.ApplyRemote(key, entry.Value, entry.Lamport, entry.PeerID, entry.Alive)
	}
	d.version = clock.Merge(d.version, delta.Version)
}

// EncodeDelta gob-encodes a Delta for wire transmission.
func EncodeDelta(delta Delta) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(delta); err != nil {
		return nil, fmt.Errorf("%w: %w", vaulterrors.DecodeFailure, err)
	}
	return buf.Bytes(), nil
}

// DecodeDelta reverses EncodeDelta.
func DecodeDelta(data []byte) (Delta, error) {
	var delta Delta
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&delta); err != nil {
		return Delta{}, fmt.Errorf("%w: %w", vaulterrors.DecodeFailure, err)
	}
	return delta, nil
}

// Serialize renders the document back to raw file bytes: the
// frontmatter header (if non-empty) followed by the materialized body.
func (d *Document) Serialize() (string, error) {
	header, err := d.frontmatter.Render()
	if err != nil {
		return "", err
	}
	body := d.text.Value()
	if header == "" {
		return body, nil
	}
	return header + body, nil
}

// Version returns a copy of this document's current version vector.
func (d *Document) Version() clock.VersionVector { return clock.Clone(d.version) }

// EncodedVersion gob-encodes the version vector, for the same on-disk
// and wire consistency the Path Registry uses.
func (d *Document) EncodedVersion() ([]byte, error) { return clock.Encode(d.version) }

// VersionIncludes reports whether this document's version vector
// dominates other — i.e. every operation other has observed, this
// document has also observed.
func (d *Document) VersionIncludes(other clock.VersionVector) bool {
	return clock.Includes(d.version, other)
}

// DocID returns the document's stable identifier.
func (d *Document) DocID() string { return d.docID }
