package document

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/webdesserts/obsidian-memory-sub000/internal/clock"
	"github.com/webdesserts/obsidian-memory-sub000/internal/vaulterrors"
)

// blobHeader is the header-first section of a document blob, kept as a
// struct gob can decode independently of the trailing node/entry lists —
// the reason blobs use gob instead of JSON (see DESIGN.md).
type blobHeader struct {
	ChangeCount  uint32
	OpCount      uint32
	StartVersion clock.VersionVector
	EndVersion   clock.VersionVector
	CreatedAt    int64
	ModifiedAt   int64
}

// blobBody is the trailing section: the raw CRDT state.
type blobBody struct {
	TextNodes   []TextNode
	Frontmatter map[string]frontmatterEntry
}

// EncodeBlob serializes a Document's on-disk representation:
// `.sync/docs/<docId>.crdt` is header then body, both gob-encoded to the
// same stream so the header can be read back without materializing the
// (potentially large) node list.
func (d *Document) EncodeBlob() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	header := blobHeader{
		ChangeCount:  d.changeCount,
		OpCount:      d.opCount,
		StartVersion: d.startVersion,
		EndVersion:   d.Version(),
		CreatedAt:    d.createdAt,
		ModifiedAt:   d.modifiedAt,
	}
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("encode blob header: %w", err)
	}
	body := blobBody{TextNodes: d.text.Nodes(), Frontmatter: d.frontmatter.Entries()}
	if err := enc.Encode(body); err != nil {
		return nil, fmt.Errorf("encode blob body: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeBlobHeader reads just the header from a blob, without
// decoding the (possibly large) body — the capability the gob framing
// was chosen for (see DESIGN.md).
func decodeBlobHeader(data []byte) (blobHeader, error) {
	var header blobHeader
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&header); err != nil {
		return blobHeader{}, fmt.Errorf("%w: %w", vaulterrors.CorruptBlob, err)
	}
	return header, nil
}

// DecodeBlob fully decodes a blob into a Document owned by peerID.
func DecodeBlob(peerID, docID string, data []byte) (*Document, error) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var header blobHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("%w: %w", vaulterrors.CorruptBlob, err)
	}
	var body blobBody
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %w", vaulterrors.CorruptBlob, err)
	}

	doc := newDocument(peerID, docID)
	doc.text = LoadNodes(peerID, body.TextNodes)
	doc.frontmatter.LoadEntries(body.Frontmatter)
	doc.changeCount = header.ChangeCount
	doc.opCount = header.OpCount
	doc.startVersion = header.StartVersion
	doc.version = clock.Clone(header.EndVersion)
	doc.createdAt = header.CreatedAt
	doc.modifiedAt = header.ModifiedAt
	return doc, nil
}
